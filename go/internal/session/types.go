package session

import (
	"time"

	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/models"
)

// Assignment is what a participant receives on login: the assigned question
// and the fixed deadline of their session.
type Assignment struct {
	Session  models.Session  `json:"session"`
	Question models.Question `json:"question"`
	Resumed  bool            `json:"resumed"`
}

// Deadline returns the session end time.
func (a Assignment) Deadline() time.Time {
	return a.Session.EndTime
}

// Resumption is the result of a resume check.
type Resumption struct {
	Session   models.Session `json:"session"`
	Resumable bool           `json:"resumable"`
	// Hint is the mirrored token found before re-validation, if any.
	Hint *mirror.Token `json:"hint,omitempty"`
	// HintStale is set when the mirrored token disagreed with the record.
	HintStale bool `json:"hint_stale"`
}

// SubmitParams are the fields written together when a submission commits.
type SubmitParams struct {
	Score       int
	Answer      *models.AnswerManifest
	SubmittedAt time.Time
}
