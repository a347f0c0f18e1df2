// Package repository implements the services.Store interface on PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/pkg/paginator"
	"github.com/paulexconde/signalq/internal/pkg/store"
	"github.com/paulexconde/signalq/internal/services"
	"github.com/paulexconde/signalq/pkg/fault"
)

const questionColumns = "id, key, uuid, field_type, payload, required, created_at"
const sessionColumns = "id, token, first_question_id, started_at, submit_before, ttl_seconds, created_at"

type PostgresStore struct {
	db        *sqlx.DB
	questions store.Datastorer[models.Question]
	sessions  store.Datastorer[models.Session]
	answers   store.Datastorer[models.Answer]

	questionPager paginator.Paginator[models.Question]
}

var _ services.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	questions := store.NewDataStore[models.Question](db, "questions")

	return &PostgresStore{
		db:            db,
		questions:     questions,
		sessions:      store.NewDataStore[models.Session](db, "qa_sessions"),
		answers:       store.NewDataStore[models.Answer](db, "answers"),
		questionPager: paginator.NewPaginator[models.Question](questions),
	}
}

// --- DTOs ---

type questionDTO struct {
	Key       string         `db:"key"`
	UUID      string         `db:"uuid"`
	FieldType string         `db:"field_type"`
	Payload   models.Payload `db:"payload"`
	Required  bool           `db:"required"`
}

func (d questionDTO) ToModel(id int) any {
	return &models.Question{
		ID:        id,
		Key:       d.Key,
		UUID:      d.UUID,
		FieldType: d.FieldType,
		Payload:   d.Payload,
		Required:  d.Required,
	}
}

type sessionDTO struct {
	Token           string     `db:"token"`
	FirstQuestionID *int       `db:"first_question_id"`
	StartedAt       *time.Time `db:"started_at"`
	SubmitBefore    *time.Time `db:"submit_before"`
	TTLSeconds      int        `db:"ttl_seconds"`
}

func (d sessionDTO) ToModel(id int) any {
	return &models.Session{
		ID:              id,
		Token:           d.Token,
		FirstQuestionID: d.FirstQuestionID,
		StartedAt:       d.StartedAt,
		SubmitBefore:    d.SubmitBefore,
		TTLSeconds:      d.TTLSeconds,
	}
}

// --- Questions ---

func (s *PostgresStore) QuestionByKey(ctx context.Context, key string) (*models.Question, error) {
	query := fmt.Sprintf("SELECT %s FROM questions WHERE key=$1", questionColumns)
	return s.questions.Get(ctx, query, key)
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, question *models.Question) error {
	dto := questionDTO{
		Key:       question.Key,
		UUID:      question.UUID,
		FieldType: question.FieldType,
		Payload:   question.Payload,
		Required:  question.Required,
	}

	created, err := s.questions.Create(ctx, dto)
	if err != nil {
		return err
	}
	if model, ok := created.(*models.Question); ok {
		question.ID = model.ID
	}
	return nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, question *models.Question) error {
	// UUID is left empty on purpose: empty fields are skipped by the
	// partial update, so the surrogate identity is never overwritten.
	dto := questionDTO{
		Key:       question.Key,
		FieldType: question.FieldType,
		Payload:   question.Payload,
		Required:  question.Required,
	}

	if _, err := s.questions.Update(ctx, question.ID, dto); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fault.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PostgresStore) DeleteQuestion(ctx context.Context, id int) error {
	return s.questions.Delete(ctx, id)
}

func (s *PostgresStore) ListQuestions(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Question], error) {
	query := fmt.Sprintf("SELECT %s FROM questions ORDER BY id DESC", questionColumns)
	return s.questionPager.PaginateQuery(ctx, query, nil, page, limit)
}

// --- Sessions ---

func (s *PostgresStore) SessionByToken(ctx context.Context, token string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM qa_sessions WHERE token=$1", sessionColumns)
	session, err := s.sessions.Get(ctx, query, token)
	if err != nil {
		return nil, err
	}

	if session.FirstQuestionID != nil {
		questionQuery := fmt.Sprintf("SELECT %s FROM questions WHERE id=$1", questionColumns)
		question, err := s.questions.Get(ctx, questionQuery, *session.FirstQuestionID)
		if err != nil {
			return nil, err
		}
		session.FirstQuestion = question
	}

	return session, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	dto := sessionDTO{
		Token:           session.Token,
		FirstQuestionID: session.FirstQuestionID,
		StartedAt:       session.StartedAt,
		SubmitBefore:    session.SubmitBefore,
		TTLSeconds:      session.TTLSeconds,
	}

	created, err := s.sessions.Create(ctx, dto)
	if err != nil {
		return err
	}
	if model, ok := created.(*models.Session); ok {
		session.ID = model.ID
	}
	return nil
}

func (s *PostgresStore) MarkSessionStarted(ctx context.Context, sessionID int, startedAt time.Time) error {
	return s.sessions.BulkUpdate(ctx, "UPDATE qa_sessions SET started_at=$1 WHERE id=$2 AND started_at IS NULL", startedAt, sessionID)
}

func (s *PostgresStore) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM qa_sessions
		WHERE (started_at IS NOT NULL AND started_at + make_interval(secs => ttl_seconds) < $1)
		   OR (started_at IS NULL AND submit_before IS NOT NULL AND submit_before < $1)`

	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Answers ---

func (s *PostgresStore) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Serialize concurrent submissions to the same session so that the
	// "most recent answer per question" order stays well-defined.
	if _, err = tx.ExecContext(ctx, "SELECT id FROM qa_sessions WHERE id=$1 FOR UPDATE", answer.SessionID); err != nil {
		return err
	}

	row := tx.QueryRowxContext(ctx,
		"INSERT INTO answers (session_id, question_id, answer, label) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		answer.SessionID, answer.QuestionID, answer.Value, answer.Label)
	if err = row.Scan(&answer.ID, &answer.CreatedAt); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func (s *PostgresStore) LatestAnswers(ctx context.Context, sessionID int) ([]models.Answer, error) {
	// Most recent answer per distinct question: clients may overwrite a
	// question by resubmitting it.
	query := `SELECT DISTINCT ON (question_id) id, session_id, question_id, answer, label, created_at
		FROM answers WHERE session_id=$1
		ORDER BY question_id, created_at DESC, id DESC`

	answers, err := s.answers.Select(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return answers, nil
	}

	ids := make([]int64, 0, len(answers))
	seen := make(map[int]struct{}, len(answers))
	for _, answer := range answers {
		if _, ok := seen[answer.QuestionID]; !ok {
			seen[answer.QuestionID] = struct{}{}
			ids = append(ids, int64(answer.QuestionID))
		}
	}

	questionQuery := fmt.Sprintf("SELECT %s FROM questions WHERE id = ANY($1)", questionColumns)
	questions, err := s.questions.Select(ctx, questionQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*models.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	for i := range answers {
		answers[i].Question = byID[answers[i].QuestionID]
	}

	return answers, nil
}

func (s *PostgresStore) LatestRatingsForQuestion(ctx context.Context, questionID int) ([]int, error) {
	query := `SELECT (answer #>> '{}')::numeric::int FROM (
			SELECT DISTINCT ON (session_id) answer, created_at, id
			FROM answers
			WHERE question_id=$1 AND jsonb_typeof(answer) = 'number'
			ORDER BY session_id, created_at DESC, id DESC
		) latest`

	var ratings []int
	if err := s.db.SelectContext(ctx, &ratings, query, questionID); err != nil {
		return nil, err
	}
	return ratings, nil
}
