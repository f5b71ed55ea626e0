package gateway

import (
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
)

// MessageType identifies a countdown stream message
type MessageType string

const (
	MessageTick    MessageType = "tick"
	MessageOutcome MessageType = "outcome"
	MessageClosed  MessageType = "closed"
)

// Message is what the participant UI receives over the websocket
type Message struct {
	Type             MessageType  `json:"type"`
	RemainingSeconds int          `json:"remaining_seconds"`
	Outcome          *OutcomeView `json:"outcome,omitempty"`
}

// OutcomeView is the participant-facing part of a submission outcome
type OutcomeView struct {
	Submitted bool   `json:"submitted"`
	Expired   bool   `json:"expired"`
	Score     *int   `json:"score,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
}

func messageFor(u workspace.Update) Message {
	if !u.Final {
		return Message{Type: MessageTick, RemainingSeconds: u.Remaining}
	}
	if u.Outcome == nil {
		// Workspace stopped without a result (logout or shutdown).
		return Message{Type: MessageClosed, RemainingSeconds: u.Remaining}
	}
	return Message{Type: MessageOutcome, Outcome: viewOf(u.Outcome)}
}

func viewOf(o *submission.Outcome) *OutcomeView {
	return &OutcomeView{
		Submitted: o.Session.Submitted,
		Expired:   o.Session.Expired,
		Score:     o.Score,
		Trigger:   string(o.Trigger),
	}
}
