package api

import (
	"net/http"
	"strconv"
)

const defaultOverallLimit = 50

func (s *Service) CompetitionLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := competitionID(w, r)
	if !ok {
		return
	}
	entries, err := s.leaderboard.ListCompetition(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) OverallLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultOverallLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	totals, err := s.leaderboard.ListOverall(r.Context(), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
