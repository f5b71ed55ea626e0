package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/rs/zerolog/log"
)

const (
	CompetitionServiceName = "arena.v1.CompetitionService"
	SessionServiceName     = "arena.v1.SessionService"
	LeaderboardServiceName = "arena.v1.LeaderboardService"
)

// Procedure paths served by RPCService.
const (
	GetCompetitionProcedure             = "/" + CompetitionServiceName + "/GetCompetition"
	ListCompetitionsProcedure           = "/" + CompetitionServiceName + "/ListCompetitions"
	SetCompetitionStatusProcedure       = "/" + CompetitionServiceName + "/SetCompetitionStatus"
	EstablishSessionProcedure           = "/" + SessionServiceName + "/EstablishSession"
	PeekSessionProcedure                = "/" + SessionServiceName + "/PeekSession"
	ListCompetitionLeaderboardProcedure = "/" + LeaderboardServiceName + "/ListCompetitionLeaderboard"
	ListOverallLeaderboardProcedure     = "/" + LeaderboardServiceName + "/ListOverallLeaderboard"
)

// ErrorCodeHeader carries the wire error code on failed calls.
const ErrorCodeHeader = "Arena-Error-Code"

// JSONCodec encodes RPC messages as plain JSON. It replaces connect's
// protojson codec, so messages are ordinary Go structs.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

type GetCompetitionRequest struct {
	ID string `json:"id"`
}

type CompetitionResponse struct {
	Competition models.Competition `json:"competition"`
}

type ListCompetitionsRequest struct{}

type ListCompetitionsResponse struct {
	Competitions []models.Competition `json:"competitions"`
}

type SetCompetitionStatusRequest struct {
	ID     string                   `json:"id"`
	Status models.CompetitionStatus `json:"status"`
}

type SessionRequest struct {
	CompetitionID string `json:"competition_id"`
	Identifier    string `json:"identifier"`
}

type ListCompetitionLeaderboardRequest struct {
	CompetitionID string `json:"competition_id"`
}

type ListCompetitionLeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
}

type ListOverallLeaderboardRequest struct {
	Limit int `json:"limit"`
}

type ListOverallLeaderboardResponse struct {
	Totals []models.OverallScore `json:"totals"`
}

// RPCService serves the JSON operations of Service as connect unary RPCs.
// Multipart uploads stay on the plain HTTP routes.
type RPCService struct {
	svc *Service
}

// NewRPCService creates a new connect service on top of svc
func NewRPCService(svc *Service) *RPCService {
	return &RPCService{svc: svc}
}

// Register mounts every procedure on mux
func (s *RPCService) Register(mux *http.ServeMux) {
	codec := connect.WithCodec(JSONCodec{})

	mux.Handle(GetCompetitionProcedure, connect.NewUnaryHandler(GetCompetitionProcedure, s.GetCompetition, codec))
	mux.Handle(ListCompetitionsProcedure, connect.NewUnaryHandler(ListCompetitionsProcedure, s.ListCompetitions, codec))
	mux.Handle(SetCompetitionStatusProcedure, connect.NewUnaryHandler(SetCompetitionStatusProcedure, s.SetCompetitionStatus, codec))
	mux.Handle(EstablishSessionProcedure, connect.NewUnaryHandler(EstablishSessionProcedure, s.EstablishSession, codec))
	mux.Handle(PeekSessionProcedure, connect.NewUnaryHandler(PeekSessionProcedure, s.PeekSession, codec))
	mux.Handle(ListCompetitionLeaderboardProcedure, connect.NewUnaryHandler(ListCompetitionLeaderboardProcedure, s.ListCompetitionLeaderboard, codec))
	mux.Handle(ListOverallLeaderboardProcedure, connect.NewUnaryHandler(ListOverallLeaderboardProcedure, s.ListOverallLeaderboard, codec))
}

func (s *RPCService) GetCompetition(ctx context.Context, req *connect.Request[GetCompetitionRequest]) (*connect.Response[CompetitionResponse], error) {
	id, err := parseID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}
	comp, err := s.svc.competitions.GetCompetition(ctx, id)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&CompetitionResponse{Competition: *comp}), nil
}

func (s *RPCService) ListCompetitions(ctx context.Context, req *connect.Request[ListCompetitionsRequest]) (*connect.Response[ListCompetitionsResponse], error) {
	comps, err := s.svc.competitions.ListCompetitions(ctx)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&ListCompetitionsResponse{Competitions: comps}), nil
}

func (s *RPCService) SetCompetitionStatus(ctx context.Context, req *connect.Request[SetCompetitionStatusRequest]) (*connect.Response[CompetitionResponse], error) {
	id, err := parseID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}
	comp, err := s.svc.competitions.SetStatus(ctx, id, req.Msg.Status)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&CompetitionResponse{Competition: *comp}), nil
}

// EstablishSession logs in and opens the workspace, like the HTTP route.
func (s *RPCService) EstablishSession(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionResponse], error) {
	id, err := parseID("competition_id", req.Msg.CompetitionID)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.establish(ctx, req.Msg.Identifier, id)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *RPCService) PeekSession(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[session.Resumption], error) {
	id, err := parseID("competition_id", req.Msg.CompetitionID)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.sessions.Peek(ctx, req.Msg.Identifier, id)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *RPCService) ListCompetitionLeaderboard(ctx context.Context, req *connect.Request[ListCompetitionLeaderboardRequest]) (*connect.Response[ListCompetitionLeaderboardResponse], error) {
	id, err := parseID("competition_id", req.Msg.CompetitionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.svc.leaderboard.ListCompetition(ctx, id)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&ListCompetitionLeaderboardResponse{Entries: entries}), nil
}

func (s *RPCService) ListOverallLeaderboard(ctx context.Context, req *connect.Request[ListOverallLeaderboardRequest]) (*connect.Response[ListOverallLeaderboardResponse], error) {
	limit := req.Msg.Limit
	if limit < 0 {
		return nil, invalidArgument(errors.New("limit must not be negative"))
	}
	if limit == 0 {
		limit = defaultOverallLimit
	}
	totals, err := s.svc.leaderboard.ListOverall(ctx, limit)
	if err != nil {
		return nil, rpcError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&ListOverallLeaderboardResponse{Totals: totals}), nil
}

func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, invalidArgument(fmt.Errorf("%s must be a uuid", field))
	}
	return id, nil
}

func invalidArgument(err error) *connect.Error {
	cerr := connect.NewError(connect.CodeInvalidArgument, err)
	cerr.Meta().Set(ErrorCodeHeader, "invalid_request")
	return cerr
}

// rpcError maps err onto a connect code, keeping the wire code of the JSON
// routes in ErrorCodeHeader. Internal errors are logged and not exposed.
func rpcError(procedure string, err error) *connect.Error {
	wire, status := contesterr.Code(err)

	code := connect.CodeInternal
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = connect.CodeInvalidArgument
	case http.StatusNotFound:
		code = connect.CodeNotFound
	case http.StatusConflict, http.StatusGone:
		code = connect.CodeFailedPrecondition
	case http.StatusServiceUnavailable:
		code = connect.CodeUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("procedure", procedure).Msg("rpc failed")
	}
	if code == connect.CodeInternal {
		err = errors.New(http.StatusText(http.StatusInternalServerError))
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(ErrorCodeHeader, wire)
	return cerr
}
