package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/countdown"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
	"github.com/rs/zerolog/log"
)

// SessionResponse is returned on login
type SessionResponse struct {
	Session          models.Session  `json:"session"`
	Question         models.Question `json:"question"`
	Deadline         time.Time       `json:"deadline"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Resumed          bool            `json:"resumed"`
}

// OutcomeResponse is returned by a manual submit
type OutcomeResponse struct {
	Submitted bool               `json:"submitted"`
	Expired   bool               `json:"expired"`
	Score     *int               `json:"score,omitempty"`
	Trigger   submission.Trigger `json:"trigger,omitempty"`
	Replayed  bool               `json:"replayed"`
}

// EstablishSession logs an identifier into a competition and opens its
// workspace.
func (s *Service) EstablishSession(w http.ResponseWriter, r *http.Request) {
	id, ok := competitionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Identifier string `json:"identifier"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.establish(r.Context(), req.Identifier, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) establish(ctx context.Context, identifier string, competitionID uuid.UUID) (*SessionResponse, error) {
	assignment, err := s.sessions.EstablishOrResume(ctx, identifier, competitionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.workspaces.Open(assignment.Session); err != nil && !errors.Is(err, workspace.ErrClosed) {
		return nil, err
	}
	return &SessionResponse{
		Session:          assignment.Session,
		Question:         assignment.Question,
		Deadline:         assignment.Deadline(),
		RemainingSeconds: countdown.Remaining(s.clock.Now(), assignment.Deadline()),
		Resumed:          assignment.Resumed,
	}, nil
}

// PeekSession is the resume check used before showing the login form.
func (s *Service) PeekSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	res, err := s.sessions.Peek(r.Context(), key.Identifier, key.CompetitionID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) SaveDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	answer, err := s.readAnswer(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	if err := s.workspaces.SaveDraft(r.Context(), key, answer); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	answer, err := s.readAnswer(w, r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	out, err := s.workspaces.Submit(r.Context(), key, answer)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{
		Submitted: out.Session.Submitted,
		Expired:   out.Session.Expired,
		Score:     out.Score,
		Trigger:   out.Trigger,
		Replayed:  out.Replayed,
	})
}

// Logout stops the countdown. The session stays resumable until its deadline.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.workspaces.Close(key) {
		log.Info().Str("session", key.String()).Msg("participant logged out")
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionKey(w http.ResponseWriter, r *http.Request) (models.SessionKey, bool) {
	id, ok := competitionID(w, r)
	if !ok {
		return models.SessionKey{}, false
	}
	identifier := models.CanonicalIdentifier(r.PathValue("identifier"))
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "invalid_identifier", contesterr.ErrInvalidIdentifier.Error())
		return models.SessionKey{}, false
	}
	return models.SessionKey{Identifier: identifier, CompetitionID: id}, true
}

// readAnswer reads a multipart answer: every file field is a part named after
// the field, and the optional "text" field is the free text.
func (s *Service) readAnswer(w http.ResponseWriter, r *http.Request) (models.Answer, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return models.Answer{}, fmt.Errorf("%w: %w", contesterr.ErrInvalidRequest, err)
	}

	answer := models.Answer{
		Text:  r.FormValue("text"),
		Parts: make(map[string]models.AnswerPart, len(r.MultipartForm.File)),
	}
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		part, err := readPart(headers[0])
		if err != nil {
			return models.Answer{}, fmt.Errorf("%w: failed to read %s: %w", contesterr.ErrInvalidRequest, name, err)
		}
		answer.Parts[name] = part
	}
	return answer, nil
}

func readPart(fh *multipart.FileHeader) (models.AnswerPart, error) {
	f, err := fh.Open()
	if err != nil {
		return models.AnswerPart{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.AnswerPart{}, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return models.AnswerPart{FileName: fh.Filename, ContentType: contentType, Data: data}, nil
}
