package submission

import (
	"fmt"

	"github.com/mcdev12/arena/go/internal/models"
)

// Trigger names what started a submission attempt.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// ExpiryPolicy decides what expiry does when no answer content exists.
type ExpiryPolicy string

const (
	// PolicyAllowEmpty submits the empty answer with the configured empty score.
	PolicyAllowEmpty ExpiryPolicy = "allow_empty"
	// PolicyRecordOnly records expiry without a submission and assigns no score.
	PolicyRecordOnly ExpiryPolicy = "record_only"
)

// ParseExpiryPolicy validates a configured policy name.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch p := ExpiryPolicy(s); p {
	case PolicyAllowEmpty, PolicyRecordOnly:
		return p, nil
	case "":
		return "", fmt.Errorf("expiry policy must be set to %q or %q", PolicyAllowEmpty, PolicyRecordOnly)
	default:
		return "", fmt.Errorf("unknown expiry policy %q", s)
	}
}

// Config controls validation and expiry behaviour.
type Config struct {
	// RequiredParts must all hold content for a manual submit.
	RequiredParts []string
	ExpiryPolicy  ExpiryPolicy
	// EmptyScore is recorded for an empty auto submission.
	EmptyScore int
}

// Validate checks the config. There is no default expiry policy.
func (c Config) Validate() error {
	if _, err := ParseExpiryPolicy(string(c.ExpiryPolicy)); err != nil {
		return err
	}
	return nil
}

// Outcome is the terminal result of a session.
type Outcome struct {
	Session models.Session `json:"session"`
	// Score is nil when expiry was recorded without a submission.
	Score   *int    `json:"score,omitempty"`
	Trigger Trigger `json:"trigger,omitempty"`
	Expired bool    `json:"expired"`
	// Replayed is set when the call found the session already terminal and
	// returned the earlier result without doing any work.
	Replayed bool `json:"replayed"`
}

func outcomeFromRecord(s models.Session) *Outcome {
	return &Outcome{
		Session:  s,
		Score:    s.Score,
		Expired:  s.Expired,
		Replayed: true,
	}
}
