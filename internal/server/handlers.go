package server

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/services"
	"github.com/paulexconde/signalq/pkg/fault"
)

// Handler translates HTTP requests into service calls and back.
type Handler struct {
	qa        services.QAService
	questions services.QuestionService
	nps       services.NPSService

	validate *validator.Validate
	now      func() time.Time
}

// NewHandler instantiates the HTTP handler set.
func NewHandler(qa services.QAService, questions services.QuestionService, nps services.NPSService) *Handler {
	return &Handler{
		qa:        qa,
		questions: questions,
		nps:       nps,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// --------- Input DTOs ---------

type answerIn struct {
	Key          string `json:"key" validate:"required"`
	Answer       any    `json:"answer"`
	SessionToken string `json:"session_token"`
}

type questionIn struct {
	Key       string         `json:"key"`
	FieldType string         `json:"field_type" validate:"required"`
	Payload   models.Payload `json:"payload"`
	Required  bool           `json:"required"`
}

type sessionIn struct {
	FirstQuestionKey string     `json:"first_question_key" validate:"required"`
	TTLSeconds       int        `json:"ttl_seconds"`
	SubmitBefore     *time.Time `json:"submit_before"`
}

// --------- Output DTOs ---------

type answerOut struct {
	Key          string  `json:"key"`
	Answer       any     `json:"answer"`
	Label        string  `json:"label"`
	SessionToken string  `json:"session_token,omitempty"`
	NextKey      *string `json:"next_key"`
}

type sessionOut struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

func answerToOut(answer *models.Answer) (answerOut, error) {
	nextKey, err := answer.Question.NextKey(answer.Value.V)
	if err != nil {
		return answerOut{}, fault.NewInternalError("resolving next question for answer", err)
	}

	out := answerOut{
		Key:          answer.Question.Key,
		Answer:       answer.Value.V,
		Label:        answer.Label,
		SessionToken: answer.SessionToken,
	}
	if nextKey != "" {
		out.NextKey = &nextKey
	}
	return out, nil
}

// --------- Answers ---------

// CreateAnswer handles POST /answers: validate, record, and route to the
// next question.
func (h *Handler) CreateAnswer(c *fiber.Ctx) error {
	var in answerIn
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input: " + err.Error()})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if in.Answer == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "answer is required"})
	}

	answer, err := h.qa.ProcessAnswer(c.Context(), in.Key, in.Answer, in.SessionToken)
	if err != nil {
		return respondError(c, err)
	}

	out, err := answerToOut(answer)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// --------- Sessions ---------

// PrepareSession handles POST /qa-sessions: pre-issue a session, e.g. for
// an emailed feedback link.
func (h *Handler) PrepareSession(c *fiber.Ctx) error {
	var in sessionIn
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input: " + err.Error()})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	session, err := h.qa.PrepareSession(c.Context(), in.FirstQuestionKey, in.TTLSeconds, in.SubmitBefore)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sessionOut{
		Token: session.Token,
		Key:   session.FirstQuestion.Key,
	})
}

// retrievableSession loads the session behind :token and applies the
// retrieval rule: a passed submit_before hides the session entirely.
func (h *Handler) retrievableSession(c *fiber.Ctx) (*models.Session, error) {
	session, err := h.qa.GetSession(c.Context(), c.Params("token"))
	if err != nil {
		return nil, err
	}
	if !session.Retrievable(h.now()) {
		return nil, fault.NewClientError("session no longer available", fault.ErrInvalidSession)
	}
	return session, nil
}

func (h *Handler) GetSession(c *fiber.Ctx) error {
	session, err := h.retrievableSession(c)
	if err != nil {
		return respondSessionError(c, err)
	}

	out := sessionOut{Token: session.Token}
	if session.FirstQuestion != nil {
		out.Key = session.FirstQuestion.Key
	}
	return c.JSON(out)
}

func (h *Handler) GetSessionAnswers(c *fiber.Ctx) error {
	session, err := h.retrievableSession(c)
	if err != nil {
		return respondSessionError(c, err)
	}

	answers, err := h.qa.GetAnswers(c.Context(), session.Token)
	if err != nil {
		return respondError(c, err)
	}

	outs := make([]answerOut, 0, len(answers))
	for i := range answers {
		out, err := answerToOut(&answers[i])
		if err != nil {
			return respondError(c, err)
		}
		outs = append(outs, out)
	}
	return c.JSON(outs)
}

func (h *Handler) GetSessionQuestions(c *fiber.Ctx) error {
	session, err := h.retrievableSession(c)
	if err != nil {
		return respondSessionError(c, err)
	}

	questions, err := h.qa.GetQuestions(c.Context(), session.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(questions)
}

func (h *Handler) GetSessionExtraProperties(c *fiber.Ctx) error {
	session, err := h.retrievableSession(c)
	if err != nil {
		return respondSessionError(c, err)
	}

	props, err := h.qa.GetExtraProperties(c.Context(), session.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(props)
}

// --------- Questions (admin) ---------

func (h *Handler) CreateQuestion(c *fiber.Ctx) error {
	var in questionIn
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input: " + err.Error()})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	question := models.Question{
		Key:       in.Key,
		FieldType: in.FieldType,
		Payload:   in.Payload,
		Required:  in.Required,
	}
	if err := h.questions.Create(c.Context(), &question); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(question)
}

func (h *Handler) ListQuestions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	result, err := h.questions.List(c.Context(), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *Handler) GetQuestion(c *fiber.Ctx) error {
	question, err := h.questions.GetByKey(c.Context(), c.Params("key"))
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Question not found"})
		}
		return respondError(c, err)
	}
	return c.JSON(question)
}

func (h *Handler) UpdateQuestion(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid ID format"})
	}

	var in questionIn
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input: " + err.Error()})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	question := models.Question{
		ID:        id,
		Key:       in.Key,
		FieldType: in.FieldType,
		Payload:   in.Payload,
		Required:  in.Required,
	}
	if err := h.questions.Update(c.Context(), &question); err != nil {
		return respondError(c, err)
	}
	return c.JSON(question)
}

func (h *Handler) DeleteQuestion(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid ID format"})
	}

	if err := h.questions.Delete(c.Context(), id); err != nil {
		if errors.Is(err, fault.ErrForeignKeyViolation) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Question is still referenced"})
		}
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --------- NPS ---------

func (h *Handler) GetQuestionScore(c *fiber.Ctx) error {
	score, err := h.nps.ScoreForQuestion(c.Context(), c.Params("key"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(score)
}

// --------- Error mapping ---------

// respondError maps client faults to 400 and everything else to 500.
// Expired and invalid sessions carry distinct messages so they stay
// distinguishable in logs even where the status coincides.
func respondError(c *fiber.Ctx, err error) error {
	var f *fault.Fault
	if errors.As(err, &f) && f.Type == fault.ErrClient {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": f.Message})
	}

	log.Printf("[server] internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// respondSessionError is respondError with the retrieval rule applied: an
// unknown or no-longer-retrievable session reads as 404.
func respondSessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, fault.ErrInvalidSession) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return respondError(c, err)
}
