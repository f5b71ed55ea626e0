package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/mcdev12/arena/go/internal/api"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient[Req, Res any](srv *httptest.Server, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, connect.WithCodec(api.JSONCodec{}))
}

func (f *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCEstablishAndPeek(t *testing.T) {
	f := newFixture(t)
	comp := f.ongoingCompetition(t)
	srv := f.server(t)
	ctx := context.Background()

	establish := newClient[api.SessionRequest, api.SessionResponse](srv, api.EstablishSessionProcedure)
	res, err := establish.CallUnary(ctx, connect.NewRequest(&api.SessionRequest{CompetitionID: comp.ID.String(), Identifier: " jdoe "}))
	require.NoError(t, err)
	assert.Equal(t, "JDOE", res.Msg.Session.Identifier)
	assert.Equal(t, 60, res.Msg.RemainingSeconds)
	assert.False(t, res.Msg.Resumed)
	assert.True(t, f.workspaces.IsActive(models.SessionKey{Identifier: "JDOE", CompetitionID: comp.ID}))

	again, err := establish.CallUnary(ctx, connect.NewRequest(&api.SessionRequest{CompetitionID: comp.ID.String(), Identifier: "JDOE"}))
	require.NoError(t, err)
	assert.True(t, again.Msg.Resumed)
	assert.Equal(t, res.Msg.Question.ID, again.Msg.Question.ID)

	peek := newClient[api.SessionRequest, session.Resumption](srv, api.PeekSessionProcedure)
	p, err := peek.CallUnary(ctx, connect.NewRequest(&api.SessionRequest{CompetitionID: comp.ID.String(), Identifier: "jdoe"}))
	require.NoError(t, err)
	assert.True(t, p.Msg.Resumable)

	get := newClient[api.GetCompetitionRequest, api.CompetitionResponse](srv, api.GetCompetitionProcedure)
	g, err := get.CallUnary(ctx, connect.NewRequest(&api.GetCompetitionRequest{ID: comp.ID.String()}))
	require.NoError(t, err)
	assert.Equal(t, comp.Name, g.Msg.Competition.Name)

	list := newClient[api.ListCompetitionsRequest, api.ListCompetitionsResponse](srv, api.ListCompetitionsProcedure)
	l, err := list.CallUnary(ctx, connect.NewRequest(&api.ListCompetitionsRequest{}))
	require.NoError(t, err)
	assert.Len(t, l.Msg.Competitions, 1)

	board := newClient[api.ListCompetitionLeaderboardRequest, api.ListCompetitionLeaderboardResponse](srv, api.ListCompetitionLeaderboardProcedure)
	b, err := board.CallUnary(ctx, connect.NewRequest(&api.ListCompetitionLeaderboardRequest{CompetitionID: comp.ID.String()}))
	require.NoError(t, err)
	assert.Empty(t, b.Msg.Entries)

	overall := newClient[api.ListOverallLeaderboardRequest, api.ListOverallLeaderboardResponse](srv, api.ListOverallLeaderboardProcedure)
	o, err := overall.CallUnary(ctx, connect.NewRequest(&api.ListOverallLeaderboardRequest{}))
	require.NoError(t, err)
	assert.Empty(t, o.Msg.Totals)
}

func TestRPCErrors(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/admin/competitions", map[string]any{"name": "Later", "time_limit_minutes": 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	upcoming := decode[models.Competition](t, rec)

	establish := newClient[api.SessionRequest, api.SessionResponse](srv, api.EstablishSessionProcedure)
	testCases := []struct {
		name string
		req  api.SessionRequest
		code connect.Code
		wire string
	}{
		{"not ongoing", api.SessionRequest{CompetitionID: upcoming.ID.String(), Identifier: "jdoe"}, connect.CodeFailedPrecondition, "competition_not_ongoing"},
		{"unknown competition", api.SessionRequest{CompetitionID: "5b0a6f5e-4d55-4f43-9d6e-7f00c1b0c0de", Identifier: "jdoe"}, connect.CodeNotFound, "competition_not_found"},
		{"blank identifier", api.SessionRequest{CompetitionID: upcoming.ID.String(), Identifier: "  "}, connect.CodeInvalidArgument, "invalid_identifier"},
		{"bad id", api.SessionRequest{CompetitionID: "nope", Identifier: "jdoe"}, connect.CodeInvalidArgument, "invalid_request"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := establish.CallUnary(ctx, connect.NewRequest(&tc.req))
			require.Error(t, err)
			assert.Equal(t, tc.code, connect.CodeOf(err))

			var cerr *connect.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.wire, cerr.Meta().Get(api.ErrorCodeHeader))
		})
	}

	status := newClient[api.SetCompetitionStatusRequest, api.CompetitionResponse](srv, api.SetCompetitionStatusProcedure)
	_, err := status.CallUnary(ctx, connect.NewRequest(&api.SetCompetitionStatusRequest{ID: upcoming.ID.String(), Status: "paused"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	s, err := status.CallUnary(ctx, connect.NewRequest(&api.SetCompetitionStatusRequest{ID: upcoming.ID.String(), Status: models.CompetitionStatusOngoing}))
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionStatusOngoing, s.Msg.Competition.Status)
}
