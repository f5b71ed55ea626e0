package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/submission"
)

// ErrClosed is returned when a session has no open workspace and cannot get one.
var ErrClosed = errors.New("workspace closed")

// Submitter is what the workspace needs from the submission coordinator
type Submitter interface {
	Submit(ctx context.Context, key models.SessionKey, answer models.Answer, trigger submission.Trigger) (*submission.Outcome, error)
	Forget(key models.SessionKey)
}

// SessionFinder loads the authoritative session record
type SessionFinder interface {
	FindSession(ctx context.Context, key models.SessionKey) (*models.Session, error)
}

// Config controls expiry handling of open workspaces.
type Config struct {
	// ExpiryRetries is how many more times a failed auto-submit is attempted.
	ExpiryRetries int
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ExpiryRetries: 3,
		RetryDelay:    time.Second,
	}
}

// Update is one message of a workspace stream.
type Update struct {
	Remaining int                 `json:"remaining_seconds"`
	Outcome   *submission.Outcome `json:"outcome,omitempty"`
	Final     bool                `json:"final"`
}

type request struct {
	manual bool
	answer models.Answer
	reply  chan result
}

type result struct {
	outcome *submission.Outcome
	err     error
}

// mergeAnswer overlays the non-empty parts of next onto base.
func mergeAnswer(base, next models.Answer) models.Answer {
	out := models.Answer{
		Text:  base.Text,
		Parts: make(map[string]models.AnswerPart, len(base.Parts)+len(next.Parts)),
	}
	for name, part := range base.Parts {
		out.Parts[name] = part
	}
	for name, part := range next.Parts {
		if len(part.Data) > 0 {
			out.Parts[name] = part
		}
	}
	if next.Text != "" {
		out.Text = next.Text
	}
	return out
}

func recordOutcome(s models.Session) *submission.Outcome {
	return &submission.Outcome{
		Session:  s,
		Score:    s.Score,
		Expired:  s.Expired,
		Replayed: true,
	}
}
