package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/paulexconde/signalq/internal/config"
	"github.com/paulexconde/signalq/internal/fieldtypes"
	"github.com/paulexconde/signalq/internal/pkg/workerpool"
	"github.com/paulexconde/signalq/internal/repository"
	"github.com/paulexconde/signalq/internal/server"
	"github.com/paulexconde/signalq/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	cfg := config.Load()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Error connecting to the database: %v", err)
	}
	defer db.Close()

	registry, err := fieldtypes.Default()
	if err != nil {
		log.Fatalf("Invalid field type configuration: %v", err)
	}

	pgStore := repository.NewPostgresStore(db)
	qa := services.NewQAService(pgStore, registry)
	questions := services.NewQuestionService(pgStore, registry)
	nps := services.NewNPSService(pgStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := workerpool.NewWorkerPool(ctx, 2, 16)
	sweeper := services.NewSweeper(pgStore, pool, cfg.SweepInterval, cfg.SweepRetention)
	go sweeper.Run(ctx)

	app := server.New(server.NewHandler(qa, questions, nps))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Println("Server is running on " + cfg.Addr)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Fatal(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool.Shutdown(shutdownCtx)
}
