package models

import "time"

// DefaultSessionTTLSeconds is the rolling validity window applied to new
// sessions unless a different TTL is requested.
const DefaultSessionTTLSeconds = 2 * 60 * 60 // two hours

// Session tracks one respondent's traversal through the question graph.
//
// The token is the only externally visible handle. A session is created
// either implicitly (first answer arrives without a token) or prepared ahead
// of time, e.g. for an emailed feedback link, in which case SubmitBefore
// typically carries a hard deadline.
type Session struct {
	ID              int        `db:"id" json:"-"`
	Token           string     `db:"token" json:"token"`
	FirstQuestionID *int       `db:"first_question_id" json:"-"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	SubmitBefore    *time.Time `db:"submit_before" json:"submit_before,omitempty"`
	TTLSeconds      int        `db:"ttl_seconds" json:"ttl_seconds"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`

	FirstQuestion *Question `db:"-" json:"-"`
}

// AcceptsSubmissions reports whether a new answer may still be recorded.
// The clock starts at StartedAt; an unstarted session is only bounded by
// SubmitBefore.
func (s *Session) AcceptsSubmissions(now time.Time) bool {
	if s.StartedAt != nil {
		deadline := s.StartedAt.Add(time.Duration(s.TTLSeconds) * time.Second)
		if !now.Before(deadline) {
			return false
		}
	}
	if s.SubmitBefore != nil && !now.Before(*s.SubmitBefore) {
		return false
	}
	return true
}

// Retrievable reports whether the session may still be read back. Unlike
// AcceptsSubmissions this ignores the TTL: recorded answers stay readable
// until the SubmitBefore deadline, if any, has passed.
func (s *Session) Retrievable(now time.Time) bool {
	return s.SubmitBefore == nil || now.Before(*s.SubmitBefore)
}
