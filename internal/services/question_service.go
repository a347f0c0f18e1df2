package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/paulexconde/signalq/internal/fieldtypes"
	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/internal/pkg/paginator"
	"github.com/paulexconde/signalq/pkg/fault"
)

// QuestionService manages the question graph's nodes. Every write
// re-validates the payload against the question's field type so that edge
// ambiguities (duplicate conditional answers, multiple unconditional edges)
// never reach the database.
type QuestionService interface {
	Create(ctx context.Context, question *models.Question) error
	Update(ctx context.Context, question *models.Question) error
	Delete(ctx context.Context, id int) error
	GetByKey(ctx context.Context, key string) (*models.Question, error)
	List(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Question], error)
}

type questionServiceImpl struct {
	store    Store
	registry *fieldtypes.Registry
}

// NewQuestionService instantiates the QuestionService.
func NewQuestionService(store Store, registry *fieldtypes.Registry) QuestionService {
	return &questionServiceImpl{store: store, registry: registry}
}

func (s *questionServiceImpl) Create(ctx context.Context, question *models.Question) error {
	if question.Key == "" {
		return fault.NewClientError("question key is required", nil)
	}
	if err := s.registry.ValidatePayload(question.FieldType, question.Payload); err != nil {
		return err
	}

	question.UUID = uuid.NewString()

	if err := s.store.CreateQuestion(ctx, question); err != nil {
		if errors.Is(err, fault.ErrUniqueViolation) {
			return fault.NewClientError(fmt.Sprintf("a question with key=%s already exists", question.Key), err)
		}
		return err
	}
	return nil
}

func (s *questionServiceImpl) Update(ctx context.Context, question *models.Question) error {
	if err := s.registry.ValidatePayload(question.FieldType, question.Payload); err != nil {
		return err
	}
	if err := s.store.UpdateQuestion(ctx, question); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return fault.NewClientError(fmt.Sprintf("no question with id=%d exists", question.ID), err)
		}
		return err
	}
	return nil
}

func (s *questionServiceImpl) Delete(ctx context.Context, id int) error {
	return s.store.DeleteQuestion(ctx, id)
}

func (s *questionServiceImpl) GetByKey(ctx context.Context, key string) (*models.Question, error) {
	question, err := s.store.QuestionByKey(ctx, key)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewClientError(fmt.Sprintf("no question with key=%s exists", key), fault.ErrNotFound)
		}
		return nil, err
	}
	return question, nil
}

func (s *questionServiceImpl) List(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Question], error) {
	return s.store.ListQuestions(ctx, page, limit)
}
