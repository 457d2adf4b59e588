package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/match"
	"github.com/marku123123/petpals-new/store"
)

type MatchService struct {
	Store  *store.Store
	Engine *match.Engine
}

type matchesResponse struct {
	Candidates []match.Candidate `json:"candidates"`
	Summaries  []string          `json:"summaries"`
	PassSeq    uint64            `json:"passSeq"`
}

// RunMatches triggers a synchronous matching pass and returns its result.
func (s *MatchService) RunMatches(c echo.Context) error {
	candidates, err := s.Engine.RunPass(c.Request().Context())
	if err != nil {
		slog.Error("matching pass failed", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "matching pass failed")
	}

	_, seq := s.Engine.Latest()
	return c.JSON(http.StatusOK, &matchesResponse{
		Candidates: candidates,
		Summaries:  match.Summarize(candidates),
		PassSeq:    seq,
	})
}

// ListMatches returns the candidates of the latest completed pass. An empty
// list is a normal state, not an error.
func (s *MatchService) ListMatches(c echo.Context) error {
	candidates, seq := s.Engine.Latest()
	return c.JSON(http.StatusOK, &matchesResponse{
		Candidates: candidates,
		Summaries:  match.Summarize(candidates),
		PassSeq:    seq,
	})
}

type confirmMatchRequest struct {
	PetID1 int32 `json:"petId1"`
	PetID2 int32 `json:"petId2"`
}

// ConfirmMatch marks both sides of a confirmed match as reunited. The store
// performs the transition transactionally: a failure on either side leaves
// both reports active, and the error is surfaced to the caller instead of
// mutating anything optimistically.
func (s *MatchService) ConfirmMatch(c echo.Context) error {
	request := &confirmMatchRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if request.PetID1 == 0 || request.PetID2 == 0 || request.PetID1 == request.PetID2 {
		return echo.NewHTTPError(http.StatusBadRequest, "two distinct pet ids are required")
	}

	ctx := c.Request().Context()
	if err := s.Store.MarkPairReunited(ctx, request.PetID1, request.PetID2); err != nil {
		if errors.Is(err, store.ErrAlreadyReunited) {
			return echo.NewHTTPError(http.StatusConflict, "report already marked as reunited")
		}
		if errors.Is(err, store.ErrReportNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		slog.Error("failed to mark pair reunited", "petId1", request.PetID1, "petId2", request.PetID2, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark pair reunited")
	}

	s.Engine.Metrics().ObserveReunification()

	// Both reports just left the active set; recompute on the reduced set.
	s.Engine.RunPassAsync(context.Background())
	return c.JSON(http.StatusOK, map[string]string{"message": "Dog has been marked as reunited!"})
}
