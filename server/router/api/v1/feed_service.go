package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/store"
)

const feedItemLimit = 50

type FeedService struct {
	Profile *profile.Profile
	Store   *store.Store
}

// RecentReports serves an RSS feed of the most recent active reports so
// local shelters can subscribe without polling the API.
func (s *FeedService) RecentReports(c echo.Context) error {
	limit := feedItemLimit
	reunited := false
	reports, err := s.Store.ListReports(c.Request().Context(), &store.FindReport{
		Reunited: &reunited,
		Limit:    &limit,
	})
	if err != nil {
		slog.Error("failed to list reports for feed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build feed")
	}

	baseURL := s.Profile.InstanceURL
	feed := &feeds.Feed{
		Title:       "PetPals lost & found reports",
		Link:        &feeds.Link{Href: baseURL + "/feed.rss"},
		Description: "Recent lost and found dog reports",
		Created:     time.Now(),
	}

	for _, report := range reports {
		title := fmt.Sprintf("%s dog: %s in %s", report.Category, report.Breed, report.Location)
		if report.Name != "" {
			title = fmt.Sprintf("%s dog: %s (%s) in %s", report.Category, report.Name, report.Breed, report.Location)
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          report.UID,
			Title:       title,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/api/v1/reports/%d", baseURL, report.PetID)},
			Description: report.Details,
			Created:     time.Unix(report.CreatedTs, 0),
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		slog.Error("failed to render feed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render feed")
	}
	return c.Blob(http.StatusOK, "application/rss+xml", []byte(rss))
}
