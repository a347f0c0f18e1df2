package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/expr-lang/expr"
)

// NextRef is one outgoing edge of a question.
//
// An edge with an Answer is conditional: it is taken when the submitted
// value equals Answer exactly. An edge with an Expression is taken when the
// expression, evaluated with the submitted value bound as `answer`, yields
// true. An edge with neither is unconditional and always matches.
type NextRef struct {
	Key        string `json:"key" validate:"required"`
	Answer     any    `json:"answer,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Unconditional reports whether the edge matches any submitted value.
func (r NextRef) Unconditional() bool {
	return r.Answer == nil && r.Expression == ""
}

// Payload is the structured document attached to a question. It is stored
// as jsonb and validated against the question's field type before saving.
type Payload struct {
	Label      string    `json:"label" validate:"required"`
	ShortLabel string    `json:"shortLabel" validate:"required"`
	Next       []NextRef `json:"next,omitempty" validate:"omitempty,dive"`
}

func (p Payload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = Payload{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into Payload", src)
}

// Question is a node in the questionnaire graph. Edges to other questions
// live in the payload's Next list and are keyed by the target question's Key.
type Question struct {
	ID        int       `db:"id" json:"-"`
	Key       string    `db:"key" json:"key"`
	UUID      string    `db:"uuid" json:"uuid"`
	FieldType string    `db:"field_type" json:"field_type"`
	Payload   Payload   `db:"payload" json:"payload"`
	Required  bool      `db:"required" json:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NextKey resolves the key of the question that follows this one given a
// submitted answer. Edges are evaluated strictly in stored order and the
// first match wins. Conditional edges require exact equality on the
// JSON-decoded value; there is no coercion between, say, "5" and 5.
// Returns "" when no edge matches.
func (q *Question) NextKey(answer any) (string, error) {
	for _, ref := range q.Payload.Next {
		if ref.Expression != "" {
			match, err := evaluateEdgeExpression(ref.Expression, answer)
			if err != nil {
				return "", err
			}
			if match {
				return ref.Key, nil
			}
			continue
		}

		if ref.Answer == nil {
			return ref.Key, nil
		}

		if reflect.DeepEqual(ref.Answer, answer) {
			return ref.Key, nil
		}
	}

	return "", nil
}

// AllNextKeys returns every key referenced by any edge, conditional or not,
// deduplicated and in edge order. Used for full-graph reachability only.
func (q *Question) AllNextKeys() []string {
	seen := make(map[string]struct{}, len(q.Payload.Next))
	keys := make([]string, 0, len(q.Payload.Next))

	for _, ref := range q.Payload.Next {
		if _, ok := seen[ref.Key]; ok {
			continue
		}
		seen[ref.Key] = struct{}{}
		keys = append(keys, ref.Key)
	}

	return keys
}

// ValidateEdgeExpression compiles an edge expression and evaluates it against
// a sample value of the question's field type, so that broken or
// type-mismatched expressions are rejected when the question is saved, not
// when a citizen submits an answer.
func ValidateEdgeExpression(expression string, sample any) error {
	_, err := evaluateEdgeExpression(expression, sample)
	return err
}

func evaluateEdgeExpression(expression string, answer any) (bool, error) {
	env := edgeExpressionEnv(answer)

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, errors.New("expression did not return a boolean")
	}

	return result, nil
}

func edgeExpressionEnv(answer any) map[string]any {
	return map[string]any{"answer": answer}
}
