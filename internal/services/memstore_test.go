package services

import (
	"context"
	"sync"
	"time"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/pkg/paginator"
	"github.com/paulexconde/signalq/pkg/fault"
)

// memStore is an in-memory Store with the same contract as the Postgres
// implementation: not-found lookups return fault.ErrNotFound, LatestAnswers
// keeps the most recent row per question, reads hand out copies.
type memStore struct {
	mu        sync.Mutex
	questions []models.Question
	sessions  []models.Session
	answers   []models.Answer
	lastID    int
	baseTime  time.Time
}

func newMemStore() *memStore {
	return &memStore{baseTime: time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memStore) nextID() int {
	m.lastID++
	return m.lastID
}

// tick produces strictly increasing timestamps so insertion order doubles as
// recency order, like the serial id tiebreaker in the real store.
func (m *memStore) tick() time.Time {
	return m.baseTime.Add(time.Duration(m.lastID) * time.Millisecond)
}

// addQuestion seeds a question without going through validation.
func (m *memStore) addQuestion(key, fieldType string, payload models.Payload) *models.Question {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := models.Question{
		ID:        m.nextID(),
		Key:       key,
		UUID:      key + "-uuid",
		FieldType: fieldType,
		Payload:   payload,
		CreatedAt: m.tick(),
	}
	m.questions = append(m.questions, q)
	return &q
}

func (m *memStore) questionByID(id int) *models.Question {
	for i := range m.questions {
		if m.questions[i].ID == id {
			q := m.questions[i]
			return &q
		}
	}
	return nil
}

func (m *memStore) QuestionByKey(_ context.Context, key string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.questions {
		if m.questions[i].Key == key {
			q := m.questions[i]
			return &q, nil
		}
	}
	return nil, fault.ErrNotFound
}

func (m *memStore) CreateQuestion(_ context.Context, question *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.questions {
		if m.questions[i].Key == question.Key {
			return fault.ErrUniqueViolation
		}
	}

	question.ID = m.nextID()
	question.CreatedAt = m.tick()
	m.questions = append(m.questions, *question)
	return nil
}

func (m *memStore) UpdateQuestion(_ context.Context, question *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.questions {
		if m.questions[i].ID == question.ID {
			question.UUID = m.questions[i].UUID
			question.CreatedAt = m.questions[i].CreatedAt
			m.questions[i] = *question
			return nil
		}
	}
	return fault.ErrNotFound
}

func (m *memStore) DeleteQuestion(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.questions {
		if m.questions[i].ID == id {
			m.questions = append(m.questions[:i], m.questions[i+1:]...)
			return nil
		}
	}
	return fault.ErrNotFound
}

func (m *memStore) ListQuestions(_ context.Context, page, limit int) (*paginator.PaginatedResponse[models.Question], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := append([]models.Question(nil), m.questions...)
	return &paginator.PaginatedResponse[models.Question]{
		Items:       items,
		CurrentPage: page,
		TotalPages:  1,
		TotalItems:  len(items),
	}, nil
}

func (m *memStore) SessionByToken(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.sessions {
		if m.sessions[i].Token == token {
			s := m.sessions[i]
			if s.FirstQuestionID != nil {
				s.FirstQuestion = m.questionByID(*s.FirstQuestionID)
			}
			return &s, nil
		}
	}
	return nil, fault.ErrNotFound
}

func (m *memStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session.ID = m.nextID()
	session.CreatedAt = m.tick()
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *memStore) MarkSessionStarted(_ context.Context, sessionID int, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.sessions {
		if m.sessions[i].ID == sessionID {
			if m.sessions[i].StartedAt == nil {
				t := startedAt
				m.sessions[i].StartedAt = &t
			}
			return nil
		}
	}
	return fault.ErrNotFound
}

func (m *memStore) CreateAnswer(_ context.Context, answer *models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	answer.ID = m.nextID()
	answer.CreatedAt = m.tick()
	m.answers = append(m.answers, *answer)
	return nil
}

func (m *memStore) LatestAnswers(_ context.Context, sessionID int) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[int]models.Answer)
	var order []int
	for _, a := range m.answers {
		if a.SessionID != sessionID {
			continue
		}
		if _, ok := latest[a.QuestionID]; !ok {
			order = append(order, a.QuestionID)
		}
		latest[a.QuestionID] = a
	}

	out := make([]models.Answer, 0, len(latest))
	for _, qid := range order {
		a := latest[qid]
		a.Question = m.questionByID(qid)
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) LatestRatingsForQuestion(_ context.Context, questionID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[int]models.Answer)
	var order []int
	for _, a := range m.answers {
		if a.QuestionID != questionID {
			continue
		}
		if _, ok := latest[a.SessionID]; !ok {
			order = append(order, a.SessionID)
		}
		latest[a.SessionID] = a
	}

	var ratings []int
	for _, sid := range order {
		switch v := latest[sid].Value.V.(type) {
		case int:
			ratings = append(ratings, v)
		case float64:
			ratings = append(ratings, int(v))
		}
	}
	return ratings, nil
}

func (m *memStore) DeleteSessionsExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []models.Session
	var deleted int64
	for _, s := range m.sessions {
		if sessionWindowEndedBefore(s, cutoff) {
			deleted++
			m.deleteAnswersOf(s.ID)
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	return deleted, nil
}

func sessionWindowEndedBefore(s models.Session, cutoff time.Time) bool {
	if s.SubmitBefore != nil && s.SubmitBefore.Before(cutoff) {
		return true
	}
	if s.StartedAt != nil && s.StartedAt.Add(time.Duration(s.TTLSeconds)*time.Second).Before(cutoff) {
		return true
	}
	return false
}

func (m *memStore) deleteAnswersOf(sessionID int) {
	var kept []models.Answer
	for _, a := range m.answers {
		if a.SessionID != sessionID {
			kept = append(kept, a)
		}
	}
	m.answers = kept
}
