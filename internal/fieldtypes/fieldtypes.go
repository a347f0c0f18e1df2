// Package fieldtypes holds the validation strategies for the supported
// question types. The set of field types is a deployment-time concern: the
// registry is built explicitly at process start and rejects duplicate tags
// right there instead of discovering implementations at runtime.
package fieldtypes

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/pkg/fault"
)

// FieldType is the per-question-type validation strategy.
type FieldType interface {
	// Tag is the value stored in a question's field_type column.
	Tag() string
	// ValidateSubmission checks one submitted answer value against the
	// type's submission rules. The value is the JSON-decoded form.
	ValidateSubmission(value any) error
	// SampleValue returns a representative valid submission, used to
	// evaluate edge expressions at save time.
	SampleValue() any
}

// PlainText accepts any string submission.
type PlainText struct{}

func (PlainText) Tag() string { return "plain_text" }

func (PlainText) ValidateSubmission(value any) error {
	if _, ok := value.(string); !ok {
		return fault.NewClientError("answer for field type plain_text must be a string", fault.ErrInvalidAnswer)
	}
	return nil
}

func (PlainText) SampleValue() any { return "" }

// Integer accepts whole numbers. JSON has a single number type, so a float
// without a fractional part counts as an integer.
type Integer struct{}

func (Integer) Tag() string { return "integer" }

func (Integer) ValidateSubmission(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		if v == math.Trunc(v) {
			return nil
		}
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return nil
		}
	}
	return fault.NewClientError("answer for field type integer must be a whole number", fault.ErrInvalidAnswer)
}

func (Integer) SampleValue() any { return float64(0) }

// Registry maps field type tags to their strategies.
type Registry struct {
	validate *validator.Validate
	types    map[string]FieldType
}

// NewRegistry builds a registry from an explicit list of field types. A
// repeated tag is a configuration error and fails fast.
func NewRegistry(types ...FieldType) (*Registry, error) {
	r := &Registry{
		validate: validator.New(),
		types:    make(map[string]FieldType, len(types)),
	}

	for _, ft := range types {
		if _, ok := r.types[ft.Tag()]; ok {
			return nil, fault.NewInternalError(fmt.Sprintf("field type tag %q registered twice", ft.Tag()), fault.ErrConfiguration)
		}
		r.types[ft.Tag()] = ft
	}

	return r, nil
}

// Default returns a registry with every field type this build supports.
func Default() (*Registry, error) {
	return NewRegistry(PlainText{}, Integer{})
}

// Get resolves a tag. Unknown tags are a configuration error, not a client
// error: question rows only ever carry tags that were valid at save time.
func (r *Registry) Get(tag string) (FieldType, error) {
	ft, ok := r.types[tag]
	if !ok {
		return nil, fault.NewInternalError(fmt.Sprintf("unknown field type %q", tag), fault.ErrConfiguration)
	}
	return ft, nil
}

// ValidatePayload checks a question payload before it is persisted: shape
// (label and shortLabel present), edge sanity (at most one unconditional
// edge, no duplicate conditional answers, no edge with both an answer and an
// expression) and per-edge answer values against the field type's submission
// rules. Expressions are evaluated against the field type's sample value
// here so they cannot blow up during traversal.
func (r *Registry) ValidatePayload(tag string, payload models.Payload) error {
	ft, err := r.Get(tag)
	if err != nil {
		return err
	}

	if err := r.validate.Struct(payload); err != nil {
		return fault.NewClientError("payload does not validate", err)
	}

	var unconditional bool
	seen := make(map[string]struct{})

	for _, ref := range payload.Next {
		switch {
		case ref.Expression != "":
			if ref.Answer != nil {
				return fault.NewClientError(fmt.Sprintf("edge to %q carries both an answer and an expression", ref.Key), nil)
			}
			if err := models.ValidateEdgeExpression(ref.Expression, ft.SampleValue()); err != nil {
				return fault.NewClientError(fmt.Sprintf("edge to %q has an expression that does not evaluate for field type %s", ref.Key, tag), err)
			}
		case ref.Answer != nil:
			if err := ft.ValidateSubmission(ref.Answer); err != nil {
				return fault.NewClientError(fmt.Sprintf("edge to %q has an answer that does not match field type %s", ref.Key, tag), err)
			}
			raw, err := json.Marshal(ref.Answer)
			if err != nil {
				return fault.NewClientError(fmt.Sprintf("edge to %q has an unserializable answer", ref.Key), err)
			}
			if _, ok := seen[string(raw)]; ok {
				return fault.NewClientError(fmt.Sprintf("duplicate conditional answer %s", raw), nil)
			}
			seen[string(raw)] = struct{}{}
		default:
			if unconditional {
				return fault.NewClientError("payload has more than one unconditional edge", nil)
			}
			unconditional = true
		}
	}

	return nil
}
