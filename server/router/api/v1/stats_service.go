package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/marku123123/petpals-new/store"
)

type StatsService struct {
	Store *store.Store
}

func (s *StatsService) ReunitedCount(c echo.Context) error {
	count, err := s.Store.GetReunitedCount(c.Request().Context())
	if err != nil {
		slog.Error("failed to get reunited count", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get reunited count")
	}
	return c.JSON(http.StatusOK, map[string]int32{"reunitedCount": count})
}

// NewPostsCount counts reports created since the given unix timestamp,
// defaulting to the last 24 hours.
func (s *StatsService) NewPostsCount(c echo.Context) error {
	sinceTs := time.Now().Add(-24 * time.Hour).Unix()
	if since := c.QueryParam("since"); since != "" {
		parsed, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since timestamp")
		}
		sinceTs = parsed
	}

	count, err := s.Store.CountNewReports(c.Request().Context(), sinceTs)
	if err != nil {
		slog.Error("failed to count new reports", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count new reports")
	}
	return c.JSON(http.StatusOK, map[string]int32{"newPostsCount": count})
}
