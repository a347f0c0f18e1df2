package models

import "time"

// Answer records one submitted value for one question within one session.
// Label snapshots the question's shortLabel at submission time so that later
// edits to the question do not rewrite history. Answers are owned by their
// session and are cascade-deleted with it.
//
// Resubmitting the same question in the same session inserts a new row; only
// the most recent row per question counts for chain reconstruction.
type Answer struct {
	ID         int       `db:"id" json:"-"`
	SessionID  int       `db:"session_id" json:"-"`
	QuestionID int       `db:"question_id" json:"-"`
	Value      JSONValue `db:"answer" json:"answer"`
	Label      string    `db:"label" json:"label"`
	CreatedAt  time.Time `db:"created_at" json:"-"`

	Question     *Question `db:"-" json:"-"`
	SessionToken string    `db:"-" json:"session_token,omitempty"`
}

// ExtraProperty is the legacy free-form property-bag rendition of one
// answer, used by the surrounding incident-management application. The
// category URL is not known here; the caller overwrites it.
type ExtraProperty struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Answer      any    `json:"answer"`
	CategoryURL string `json:"category_url"`
}
