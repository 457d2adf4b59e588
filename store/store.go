package store

import (
	"context"

	"github.com/marku123123/petpals-new/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateReport(ctx context.Context, create *Report) (*Report, error) {
	return s.driver.CreateReport(ctx, create)
}

func (s *Store) ListReports(ctx context.Context, find *FindReport) ([]*Report, error) {
	return s.driver.ListReports(ctx, find)
}

// ListActiveReports lists the non-reunited, non-archived reports of one
// category. This is the view a matching pass starts from; the active-only
// filter is applied here in case the underlying store does not.
func (s *Store) ListActiveReports(ctx context.Context, category Category) ([]*Report, error) {
	reunited, archived := false, false
	reports, err := s.driver.ListReports(ctx, &FindReport{
		Category: &category,
		Reunited: &reunited,
		Archived: &archived,
	})
	if err != nil {
		return nil, err
	}
	active := make([]*Report, 0, len(reports))
	for _, report := range reports {
		if !report.Reunited && !report.Archived {
			active = append(active, report)
		}
	}
	return active, nil
}

func (s *Store) UpdateReport(ctx context.Context, update *UpdateReport) (*Report, error) {
	return s.driver.UpdateReport(ctx, update)
}

func (s *Store) DeleteReport(ctx context.Context, delete *DeleteReport) error {
	return s.driver.DeleteReport(ctx, delete)
}

func (s *Store) MarkReunited(ctx context.Context, petID int32) error {
	return s.driver.MarkReunited(ctx, petID)
}

func (s *Store) MarkPairReunited(ctx context.Context, petID1, petID2 int32) error {
	return s.driver.MarkPairReunited(ctx, petID1, petID2)
}

func (s *Store) GetReunitedCount(ctx context.Context) (int32, error) {
	return s.driver.GetReunitedCount(ctx)
}

func (s *Store) CountNewReports(ctx context.Context, sinceTs int64) (int32, error) {
	return s.driver.CountNewReports(ctx, sinceTs)
}

func (s *Store) UpsertReportFingerprint(ctx context.Context, upsert *ReportFingerprint) (*ReportFingerprint, error) {
	return s.driver.UpsertReportFingerprint(ctx, upsert)
}

func (s *Store) GetReportFingerprint(ctx context.Context, find *FindReportFingerprint) (*ReportFingerprint, error) {
	return s.driver.GetReportFingerprint(ctx, find)
}

func (s *Store) DeleteReportFingerprint(ctx context.Context, petID int32) error {
	return s.driver.DeleteReportFingerprint(ctx, petID)
}
