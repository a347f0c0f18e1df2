package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paulexconde/signalq/internal/fieldtypes"
	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/pkg/paginator"
	"github.com/paulexconde/signalq/pkg/fault"
)

// Store is the persistence surface the questionnaire services depend on.
// Lookups that find nothing return fault.ErrNotFound.
type Store interface {
	QuestionByKey(ctx context.Context, key string) (*models.Question, error)
	CreateQuestion(ctx context.Context, question *models.Question) error
	UpdateQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, id int) error
	ListQuestions(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Question], error)

	// SessionByToken loads a session with its FirstQuestion attached.
	SessionByToken(ctx context.Context, token string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	MarkSessionStarted(ctx context.Context, sessionID int, startedAt time.Time) error

	CreateAnswer(ctx context.Context, answer *models.Answer) error
	// LatestAnswers returns the most recent answer per distinct question of
	// one session, each with its Question attached. Order is unspecified.
	LatestAnswers(ctx context.Context, sessionID int) ([]models.Answer, error)
	// LatestRatingsForQuestion returns the most recent numeric answer per
	// session for one question, across all sessions.
	LatestRatingsForQuestion(ctx context.Context, questionID int) ([]int, error)

	// DeleteSessionsExpiredBefore removes sessions whose validity window
	// ended before the cutoff, cascading to their answers.
	DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// QAService orchestrates answer sessions over the question graph.
type QAService interface {
	// ProcessAnswer validates and records a submitted answer, creating a
	// session when no token is supplied.
	ProcessAnswer(ctx context.Context, key string, value any, sessionToken string) (*models.Answer, error)
	// PrepareSession pre-issues a session pointing at a first question, for
	// flows like emailed feedback links. The TTL clock does not start until
	// the first answer arrives.
	PrepareSession(ctx context.Context, firstQuestionKey string, ttlSeconds int, submitBefore *time.Time) (*models.Session, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	// GetAnswers reconstructs the linear answer chain actually taken.
	GetAnswers(ctx context.Context, token string) ([]models.Answer, error)
	// GetQuestions returns every question reachable from the session's
	// first question over any edge, answered or not.
	GetQuestions(ctx context.Context, token string) ([]models.Question, error)
	// GetExtraProperties renders the answer chain as the legacy property
	// bag consumed by the incident-management application.
	GetExtraProperties(ctx context.Context, token string) ([]models.ExtraProperty, error)
}

type qaServiceImpl struct {
	store    Store
	registry *fieldtypes.Registry
	now      func() time.Time
}

// NewQAService instantiates the QAService.
func NewQAService(store Store, registry *fieldtypes.Registry) QAService {
	return &qaServiceImpl{store: store, registry: registry, now: time.Now}
}

func (s *qaServiceImpl) ProcessAnswer(ctx context.Context, key string, value any, sessionToken string) (*models.Answer, error) {
	question, err := s.store.QuestionByKey(ctx, key)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewClientError(fmt.Sprintf("no question with key=%s exists", key), fault.ErrNotFound)
		}
		return nil, err
	}

	now := s.now()

	var session *models.Session
	if sessionToken != "" {
		session, err = s.GetSession(ctx, sessionToken)
		if err != nil {
			return nil, err
		}
	} else {
		// Answers are arriving, so the session starts right away and points
		// at the first question of the questionnaire.
		firstID := question.ID
		session = &models.Session{
			Token:           uuid.NewString(),
			FirstQuestionID: &firstID,
			FirstQuestion:   question,
			StartedAt:       &now,
			TTLSeconds:      models.DefaultSessionTTLSeconds,
		}
		if err := s.store.CreateSession(ctx, session); err != nil {
			return nil, err
		}
	}

	// A prepared session starts its clock on the first real answer.
	if session.StartedAt == nil {
		session.StartedAt = &now
		if err := s.store.MarkSessionStarted(ctx, session.ID, now); err != nil {
			return nil, err
		}
	}

	if !session.AcceptsSubmissions(now) {
		return nil, fault.NewClientError(fmt.Sprintf("session referenced by token=%s has expired", session.Token), fault.ErrExpiredSession)
	}

	ft, err := s.registry.Get(question.FieldType)
	if err != nil {
		return nil, err
	}
	if err := ft.ValidateSubmission(value); err != nil {
		return nil, err
	}

	answer := &models.Answer{
		SessionID:  session.ID,
		QuestionID: question.ID,
		Value:      models.NewJSONValue(value),
		Label:      question.Payload.ShortLabel,
	}
	if err := s.store.CreateAnswer(ctx, answer); err != nil {
		return nil, err
	}

	answer.Question = question
	answer.SessionToken = session.Token
	return answer, nil
}

func (s *qaServiceImpl) PrepareSession(ctx context.Context, firstQuestionKey string, ttlSeconds int, submitBefore *time.Time) (*models.Session, error) {
	question, err := s.store.QuestionByKey(ctx, firstQuestionKey)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewClientError(fmt.Sprintf("no question with key=%s exists", firstQuestionKey), fault.ErrNotFound)
		}
		return nil, err
	}

	if ttlSeconds <= 0 {
		ttlSeconds = models.DefaultSessionTTLSeconds
	}

	firstID := question.ID
	session := &models.Session{
		Token:           uuid.NewString(),
		FirstQuestionID: &firstID,
		FirstQuestion:   question,
		TTLSeconds:      ttlSeconds,
		SubmitBefore:    submitBefore,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *qaServiceImpl) GetSession(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewClientError(fmt.Sprintf("session referenced by token=%s does not exist", token), fault.ErrInvalidSession)
		}
		return nil, err
	}
	return session, nil
}

func (s *qaServiceImpl) GetAnswers(ctx context.Context, token string) ([]models.Answer, error) {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}

	answers, err := s.store.LatestAnswers(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return []models.Answer{}, nil
	}

	if session.FirstQuestion == nil {
		return nil, fault.NewInternalError(fmt.Sprintf("session %s has answers but no first question", session.Token), nil)
	}

	cache := make(map[string]*models.Answer, len(answers))
	firstAnswered := false
	for i := range answers {
		answer := &answers[i]
		if answer.Question == nil {
			return nil, fault.NewInternalError(fmt.Sprintf("answer %d of session %s is missing its question", answer.ID, session.Token), nil)
		}
		cache[answer.Question.Key] = answer
		if answer.QuestionID == session.FirstQuestion.ID {
			firstAnswered = true
		}
	}

	// A session whose answers do not include its own first question holds
	// corrupted or forged data; refuse to reconstruct a wrong chain.
	if !firstAnswered {
		return nil, fault.NewInternalError(fmt.Sprintf("first question of session %s is not among its answers", session.Token), nil)
	}

	// The walk tracks visited keys: a graph with an answered cycle would
	// otherwise revisit cached entries forever. The chain simply stops at
	// the first repeat.
	chain := make([]models.Answer, 0, len(answers))
	visited := make(map[string]struct{}, len(answers))
	current := cache[session.FirstQuestion.Key]
	for current != nil {
		if _, ok := visited[current.Question.Key]; ok {
			break
		}
		visited[current.Question.Key] = struct{}{}

		current.SessionToken = session.Token
		chain = append(chain, *current)

		nextKey, err := current.Question.NextKey(current.Value.V)
		if err != nil {
			return nil, fault.NewInternalError(fmt.Sprintf("resolving next question after %s", current.Question.Key), err)
		}
		if nextKey == "" {
			break
		}
		current = cache[nextKey]
	}

	return chain, nil
}

func (s *qaServiceImpl) GetQuestions(ctx context.Context, token string) ([]models.Question, error) {
	// This does not check that the graph is acyclic. It only collects the
	// connected component reachable from the first question; revisiting an
	// already-discovered key is a no-op, so cycles terminate quietly.
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.FirstQuestion == nil {
		return []models.Question{}, nil
	}

	discovered := map[string]struct{}{session.FirstQuestion.Key: {}}
	questions := []models.Question{*session.FirstQuestion}
	queue := append([]string(nil), session.FirstQuestion.AllNextKeys()...)

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if _, ok := discovered[key]; ok {
			continue
		}

		question, err := s.store.QuestionByKey(ctx, key)
		if err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				return nil, fault.NewInternalError(fmt.Sprintf("question graph references missing key %q", key), err)
			}
			return nil, err
		}

		discovered[key] = struct{}{}
		questions = append(questions, *question)

		for _, nextKey := range question.AllNextKeys() {
			if _, ok := discovered[nextKey]; !ok {
				queue = append(queue, nextKey)
			}
		}
	}

	return questions, nil
}

func (s *qaServiceImpl) GetExtraProperties(ctx context.Context, token string) ([]models.ExtraProperty, error) {
	answers, err := s.GetAnswers(ctx, token)
	if err != nil {
		return nil, err
	}

	props := make([]models.ExtraProperty, 0, len(answers))
	for _, answer := range answers {
		props = append(props, models.ExtraProperty{
			ID:     answer.Question.Key,
			Label:  answer.Label,
			Answer: answer.Value.V,
			// The category URL is not known in general; the caller has the
			// responsibility to overwrite it.
			CategoryURL: "PLACEHOLDER",
		})
	}

	return props, nil
}
