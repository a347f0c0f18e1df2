package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// New builds the fiber app with all routes registered.
func New(h *Handler) *fiber.App {
	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	registerRoutes(app, h)
	return app
}

func registerRoutes(app *fiber.App, h *Handler) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API is running...")
	})

	app.Post("/answers", h.CreateAnswer)

	sessions := app.Group("/qa-sessions")
	sessions.Post("/", h.PrepareSession)
	sessions.Get("/:token", h.GetSession)
	sessions.Get("/:token/answers", h.GetSessionAnswers)
	sessions.Get("/:token/questions", h.GetSessionQuestions)
	sessions.Get("/:token/extra-properties", h.GetSessionExtraProperties)

	questions := app.Group("/questions")
	questions.Post("/", h.CreateQuestion)
	questions.Get("/", h.ListQuestions)
	questions.Get("/:key", h.GetQuestion)
	questions.Get("/:key/nps", h.GetQuestionScore)
	questions.Patch("/:id", h.UpdateQuestion)
	questions.Delete("/:id", h.DeleteQuestion)
}
