package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/pkg/paginator"
	"github.com/paulexconde/signalq/internal/services"
	"github.com/paulexconde/signalq/pkg/fault"
)

// stubQA returns canned values and records what it was called with.
type stubQA struct {
	answer  *models.Answer
	session *models.Session
	answers []models.Answer
	err     error

	gotKey   string
	gotValue any
	gotToken string
	calls    int
}

func (s *stubQA) ProcessAnswer(_ context.Context, key string, value any, token string) (*models.Answer, error) {
	s.calls++
	s.gotKey, s.gotValue, s.gotToken = key, value, token
	return s.answer, s.err
}

func (s *stubQA) PrepareSession(_ context.Context, _ string, _ int, _ *time.Time) (*models.Session, error) {
	s.calls++
	return s.session, s.err
}

func (s *stubQA) GetSession(_ context.Context, token string) (*models.Session, error) {
	s.gotToken = token
	return s.session, s.err
}

func (s *stubQA) GetAnswers(_ context.Context, _ string) ([]models.Answer, error) {
	return s.answers, s.err
}

func (s *stubQA) GetQuestions(_ context.Context, _ string) ([]models.Question, error) {
	return nil, s.err
}

func (s *stubQA) GetExtraProperties(_ context.Context, _ string) ([]models.ExtraProperty, error) {
	return nil, s.err
}

type stubQuestions struct{}

func (stubQuestions) Create(_ context.Context, _ *models.Question) error { return nil }
func (stubQuestions) Update(_ context.Context, _ *models.Question) error { return nil }
func (stubQuestions) Delete(_ context.Context, _ int) error              { return nil }
func (stubQuestions) GetByKey(_ context.Context, _ string) (*models.Question, error) {
	return nil, fault.ErrNotFound
}
func (stubQuestions) List(_ context.Context, _, _ int) (*paginator.PaginatedResponse[models.Question], error) {
	return &paginator.PaginatedResponse[models.Question]{Items: []models.Question{}}, nil
}

type stubNPS struct{}

func (stubNPS) ScoreForQuestion(_ context.Context, _ string) (*services.QuestionScore, error) {
	return &services.QuestionScore{}, nil
}

func testApp(qa services.QAService) *fiber.App {
	return New(NewHandler(qa, stubQuestions{}, stubNPS{}))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func branchingQuestion() *models.Question {
	return &models.Question{
		ID:        1,
		Key:       "q1",
		FieldType: "plain_text",
		Payload: models.Payload{
			Label:      "Was your complaint handled?",
			ShortLabel: "handled",
			Next: []models.NextRef{
				{Key: "q_yes", Answer: "yes"},
				{Key: "q_no", Answer: "no"},
			},
		},
	}
}

func TestCreateAnswerEndpoint(t *testing.T) {
	qa := &stubQA{
		answer: &models.Answer{
			Value:        models.NewJSONValue("yes"),
			Label:        "handled",
			Question:     branchingQuestion(),
			SessionToken: "tok-1",
		},
	}
	app := testApp(qa)

	resp, err := app.Test(jsonRequest("POST", "/answers", `{"key":"q1","answer":"yes"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if qa.gotKey != "q1" || qa.gotValue != "yes" || qa.gotToken != "" {
		t.Errorf("unexpected service call: key=%q value=%v token=%q", qa.gotKey, qa.gotValue, qa.gotToken)
	}

	var out struct {
		Key          string  `json:"key"`
		Answer       any     `json:"answer"`
		Label        string  `json:"label"`
		SessionToken string  `json:"session_token"`
		NextKey      *string `json:"next_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Key != "q1" || out.Label != "handled" || out.SessionToken != "tok-1" {
		t.Errorf("unexpected body: %+v", out)
	}
	if out.NextKey == nil || *out.NextKey != "q_yes" {
		t.Errorf("next_key = %v, want q_yes", out.NextKey)
	}
}

func TestCreateAnswerEndpoint_MissingFields(t *testing.T) {
	qa := &stubQA{}
	app := testApp(qa)

	tests := []struct {
		name string
		body string
	}{
		{"missing key", `{"answer":"yes"}`},
		{"missing answer", `{"key":"q1"}`},
		{"null answer", `{"key":"q1","answer":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest("POST", "/answers", tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
	if qa.calls != 0 {
		t.Errorf("service should not be called for invalid input, got %d calls", qa.calls)
	}
}

func TestCreateAnswerEndpoint_ZeroValueAnswerAccepted(t *testing.T) {
	qa := &stubQA{
		answer: &models.Answer{
			Value:    models.NewJSONValue(float64(0)),
			Label:    "rating",
			Question: &models.Question{Key: "rating", FieldType: "integer", Payload: models.Payload{Label: "Rating?", ShortLabel: "rating"}},
		},
	}
	app := testApp(qa)

	resp, err := app.Test(jsonRequest("POST", "/answers", `{"key":"rating","answer":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d; zero is a legitimate answer", resp.StatusCode, http.StatusCreated)
	}
	if qa.calls != 1 {
		t.Errorf("expected 1 service call, got %d", qa.calls)
	}
}

func TestCreateAnswerEndpoint_ExpiredSession(t *testing.T) {
	qa := &stubQA{err: fault.NewClientError("session referenced by token=tok-1 has expired", fault.ErrExpiredSession)}
	app := testApp(qa)

	resp, err := app.Test(jsonRequest("POST", "/answers", `{"key":"q1","answer":"yes","session_token":"tok-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.Contains(out.Error, "expired") {
		t.Errorf("expected the fault message to surface, got %q", out.Error)
	}
}

func TestGetSessionEndpoint(t *testing.T) {
	qa := &stubQA{
		session: &models.Session{
			Token:         "tok-1",
			FirstQuestion: branchingQuestion(),
		},
	}
	app := testApp(qa)

	resp, err := app.Test(httptest.NewRequest("GET", "/qa-sessions/tok-1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out struct {
		Token string `json:"token"`
		Key   string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Token != "tok-1" || out.Key != "q1" {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestGetSessionEndpoint_Unknown(t *testing.T) {
	qa := &stubQA{err: fault.NewClientError("session referenced by token=ghost does not exist", fault.ErrInvalidSession)}
	app := testApp(qa)

	resp, err := app.Test(httptest.NewRequest("GET", "/qa-sessions/ghost", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestGetSessionEndpoint_GoneAfterSubmitBefore(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	qa := &stubQA{
		session: &models.Session{
			Token:         "tok-1",
			FirstQuestion: branchingQuestion(),
			SubmitBefore:  &past,
		},
	}
	app := testApp(qa)

	resp, err := app.Test(httptest.NewRequest("GET", "/qa-sessions/tok-1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestGetSessionAnswersEndpoint(t *testing.T) {
	q1 := branchingQuestion()
	qYes := &models.Question{
		ID:        2,
		Key:       "q_yes",
		FieldType: "plain_text",
		Payload:   models.Payload{Label: "What went well?", ShortLabel: "went_well"},
	}
	qa := &stubQA{
		session: &models.Session{Token: "tok-1", FirstQuestion: q1},
		answers: []models.Answer{
			{Value: models.NewJSONValue("yes"), Label: "handled", Question: q1, SessionToken: "tok-1"},
			{Value: models.NewJSONValue("quick response"), Label: "went_well", Question: qYes, SessionToken: "tok-1"},
		},
	}
	app := testApp(qa)

	resp, err := app.Test(httptest.NewRequest("GET", "/qa-sessions/tok-1/answers", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out []struct {
		Key     string  `json:"key"`
		Answer  any     `json:"answer"`
		NextKey *string `json:"next_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(out))
	}
	if out[0].Key != "q1" || out[0].NextKey == nil || *out[0].NextKey != "q_yes" {
		t.Errorf("unexpected first answer: %+v", out[0])
	}
	if out[1].Key != "q_yes" || out[1].NextKey != nil {
		t.Errorf("unexpected last answer: %+v", out[1])
	}
}
