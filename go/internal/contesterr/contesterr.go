// Package contesterr holds the error taxonomy shared by the session,
// submission and leaderboard packages.
package contesterr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCompetitionNotFound   = errors.New("competition not found")
	ErrCompetitionNotOngoing = errors.New("competition is not ongoing")
	ErrNoQuestions           = errors.New("no questions available for this competition")
	// ErrAlreadyUsed covers both an already submitted and an expired session.
	ErrAlreadyUsed          = errors.New("identifier has already been used for this competition")
	ErrIncompleteSubmission = errors.New("submission is incomplete")
	ErrSubmissionFailed     = errors.New("submission failed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrInvalidIdentifier    = errors.New("identifier is required")
	ErrInvalidRequest       = errors.New("invalid request")
)

// SubmitError is returned when a submission attempt failed after admission.
// The guard has been released and the attempt may be retried.
type SubmitError struct {
	Cause error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmissionFailed, e.Cause)
}

func (e *SubmitError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

func (e *SubmitError) Unwrap() error {
	return e.Cause
}

// Submit wraps cause as a SubmissionFailed error.
func Submit(cause error) error {
	return &SubmitError{Cause: cause}
}

// Unavailable marks err as a transient storage failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Code returns the machine readable code and HTTP status for err.
func Code(err error) (string, int) {
	switch {
	case errors.Is(err, ErrCompetitionNotFound):
		return "competition_not_found", http.StatusNotFound
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier", http.StatusBadRequest
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found", http.StatusNotFound
	case errors.Is(err, ErrCompetitionNotOngoing):
		return "competition_not_ongoing", http.StatusConflict
	case errors.Is(err, ErrNoQuestions):
		return "no_questions", http.StatusConflict
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used", http.StatusGone
	case errors.Is(err, ErrIncompleteSubmission):
		return "incomplete_submission", http.StatusUnprocessableEntity
	case errors.Is(err, ErrSubmissionFailed):
		return "submission_failed", http.StatusServiceUnavailable
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable", http.StatusServiceUnavailable
	}
	return "internal_error", http.StatusInternalServerError
}
