package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/answerstore"
	"github.com/mcdev12/arena/go/internal/api"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/memstore"
	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock      *clockwork.FakeClock
	workspaces *workspace.Manager
	handler    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	tokens := mirror.NewMemoryStore()
	board := leaderboard.NewAggregator(store, clock)

	coordinator, err := submission.NewCoordinator(store, answerstore.NewMemoryStore(), submission.FixedGrader{Score: 70},
		board, tokens, clock, submission.Config{
			RequiredParts: []string{models.AnswerPartPrompt, models.AnswerPartOutput},
			ExpiryPolicy:  submission.PolicyAllowEmpty,
		})
	require.NoError(t, err)

	workspaces := workspace.NewManager(coordinator, store, clock, workspace.DefaultConfig())
	t.Cleanup(workspaces.Shutdown)

	mux := http.NewServeMux()
	svc := api.NewService(competition.NewApp(store), session.NewManager(store, store, tokens, clock), workspaces, board, clock)
	svc.RegisterRoutes(mux)
	api.NewRPCService(svc).Register(mux)
	return &fixture{clock: clock, workspaces: workspaces, handler: mux}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(t *testing.T, method, path string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// ongoingCompetition creates a one minute competition with one question.
func (f *fixture) ongoingCompetition(t *testing.T) models.Competition {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/admin/competitions", map[string]any{"name": "Prompt Sprint", "time_limit_minutes": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	comp := decode[models.Competition](t, rec)
	assert.Equal(t, models.CompetitionStatusUpcoming, comp.Status)

	rec = f.do(t, http.MethodPost, "/api/admin/competitions/"+comp.ID.String()+"/questions", map[string]any{"title": "Summarise the brief"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/admin/competitions/"+comp.ID.String()+"/status", map[string]any{"status": "ongoing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[models.Competition](t, rec)
}

func TestLoginSubmitAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	comp := f.ongoingCompetition(t)
	base := "/api/competitions/" + comp.ID.String()

	rec := f.do(t, http.MethodPost, base+"/sessions", map[string]string{"identifier": " jdoe "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[api.SessionResponse](t, rec)
	assert.Equal(t, "JDOE", login.Session.Identifier)
	assert.Equal(t, 60, login.RemainingSeconds)
	assert.False(t, login.Resumed)

	f.clock.Advance(10 * time.Second)
	rec = f.do(t, http.MethodPost, base+"/sessions", map[string]string{"identifier": "JDOE"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[api.SessionResponse](t, rec)
	assert.True(t, again.Resumed)
	assert.Equal(t, login.Question.ID, again.Question.ID)
	assert.True(t, login.Deadline.Equal(again.Deadline))
	assert.Equal(t, 50, again.RemainingSeconds)

	rec = f.do(t, http.MethodGet, base+"/sessions/jdoe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[session.Resumption](t, rec).Resumable)

	rec = f.upload(t, http.MethodPost, base+"/sessions/jdoe/submit", map[string]string{"prompt": "p", "output": "o"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[api.OutcomeResponse](t, rec)
	assert.True(t, out.Submitted)
	require.NotNil(t, out.Score)
	assert.Equal(t, 70, *out.Score)

	rec = f.upload(t, http.MethodPost, base+"/sessions/jdoe/submit", map[string]string{"prompt": "p2", "output": "o2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.OutcomeResponse](t, rec).Replayed)

	rec = f.do(t, http.MethodPost, base+"/sessions", map[string]string{"identifier": "jdoe"})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "already_used", decode[api.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodGet, base+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]models.LeaderboardEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, 70, entries[0].Score)

	rec = f.do(t, http.MethodGet, "/api/leaderboard/overall?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[[]models.OverallScore](t, rec)
	require.Len(t, totals, 1)
	assert.Equal(t, 70, totals[0].Total)
}

func TestDraftThenSubmit(t *testing.T) {
	f := newFixture(t)
	comp := f.ongoingCompetition(t)
	base := "/api/competitions/" + comp.ID.String()

	rec := f.do(t, http.MethodPost, base+"/sessions", map[string]string{"identifier": "jdoe"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.upload(t, http.MethodPost, base+"/sessions/jdoe/submit", map[string]string{"prompt": "p"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "incomplete_submission", decode[api.ErrorResponse](t, rec).Code)

	rec = f.upload(t, http.MethodPut, base+"/sessions/jdoe/draft", map[string]string{"prompt": "p"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.upload(t, http.MethodPost, base+"/sessions/jdoe/submit", map[string]string{"output": "o"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[api.OutcomeResponse](t, rec).Submitted)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/competitions", map[string]any{"name": "Later", "time_limit_minutes": 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	upcoming := decode[models.Competition](t, rec)

	testCases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"not ongoing", "/api/competitions/" + upcoming.ID.String() + "/sessions", map[string]string{"identifier": "jdoe"}, http.StatusConflict, "competition_not_ongoing"},
		{"unknown competition", "/api/competitions/5b0a6f5e-4d55-4f43-9d6e-7f00c1b0c0de/sessions", map[string]string{"identifier": "jdoe"}, http.StatusNotFound, "competition_not_found"},
		{"blank identifier", "/api/competitions/" + upcoming.ID.String() + "/sessions", map[string]string{"identifier": "  "}, http.StatusBadRequest, "invalid_identifier"},
		{"bad id", "/api/competitions/nope/sessions", map[string]string{"identifier": "jdoe"}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode[api.ErrorResponse](t, rec).Code)
		})
	}
}

func TestLogoutStopsWorkspace(t *testing.T) {
	f := newFixture(t)
	comp := f.ongoingCompetition(t)
	base := "/api/competitions/" + comp.ID.String()

	rec := f.do(t, http.MethodPost, base+"/sessions", map[string]string{"identifier": "jdoe"})
	require.Equal(t, http.StatusOK, rec.Code)
	key := models.SessionKey{Identifier: "JDOE", CompetitionID: comp.ID}
	assert.True(t, f.workspaces.IsActive(key))

	rec = f.do(t, http.MethodDelete, base+"/sessions/jdoe", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Eventually(t, func() bool { return !f.workspaces.IsActive(key) }, time.Second, 5*time.Millisecond)

	rec = f.do(t, http.MethodGet, base+"/sessions/jdoe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[session.Resumption](t, rec).Resumable)
}

func TestSetStatusValidation(t *testing.T) {
	f := newFixture(t)
	comp := f.ongoingCompetition(t)

	rec := f.do(t, http.MethodPost, "/api/admin/competitions/"+comp.ID.String()+"/status", map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[api.ErrorResponse](t, rec).Code)
}
