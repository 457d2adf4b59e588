// Package v1 provides the JSON API handlers.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/match"
	"github.com/marku123123/petpals-new/store"
)

type APIV1Service struct {
	ReportService *ReportService
	MatchService  *MatchService
	StatsService  *StatsService
	FeedService   *FeedService
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, engine *match.Engine) *APIV1Service {
	return &APIV1Service{
		ReportService: &ReportService{Profile: profile, Store: store, Engine: engine},
		MatchService:  &MatchService{Store: store, Engine: engine},
		StatsService:  &StatsService{Store: store},
		FeedService:   &FeedService{Profile: profile, Store: store},
	}
}

func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/reports", s.ReportService.CreateReport)
	g.GET("/reports", s.ReportService.ListReports)
	g.GET("/reports/:petId", s.ReportService.GetReport)
	g.PATCH("/reports/:petId", s.ReportService.UpdateReport)
	g.DELETE("/reports/:petId", s.ReportService.DeleteReport)

	g.POST("/matches/run", s.MatchService.RunMatches)
	g.GET("/matches", s.MatchService.ListMatches)
	g.POST("/matches/confirm", s.MatchService.ConfirmMatch)

	g.GET("/stats/reunited-count", s.StatsService.ReunitedCount)
	g.GET("/stats/new-posts-count", s.StatsService.NewPostsCount)

	e.GET("/feed.rss", s.FeedService.RecentReports)
}
