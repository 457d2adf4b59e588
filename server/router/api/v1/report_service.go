package v1

import (
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/match"
	"github.com/marku123123/petpals-new/store"
)

// maxUploadBytes caps a single dog image upload.
const maxUploadBytes = 10 << 20

var validImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

type ReportService struct {
	Profile *profile.Profile
	Store   *store.Store
	Engine  *match.Engine
}

type reportResponse struct {
	UID       string  `json:"uid"`
	PetID     int32   `json:"petId"`
	Category  string  `json:"category"`
	OwnerID   int32   `json:"ownerId"`
	Name      string  `json:"name,omitempty"`
	Breed     string  `json:"breed"`
	Size      string  `json:"size"`
	Gender    string  `json:"gender"`
	Location  string  `json:"location"`
	Details   string  `json:"details,omitempty"`
	ImagePath *string `json:"imagePath,omitempty"`
	Reunited  bool    `json:"reunited"`
	Archived  bool    `json:"archived"`
	CreatedTs int64   `json:"createdTs"`
}

func convertReport(report *store.Report) *reportResponse {
	return &reportResponse{
		UID:       report.UID,
		PetID:     report.PetID,
		Category:  string(report.Category),
		OwnerID:   report.OwnerID,
		Name:      report.Name,
		Breed:     report.Breed,
		Size:      report.Size,
		Gender:    report.Gender,
		Location:  report.Location,
		Details:   report.Details,
		ImagePath: report.ImagePath,
		Reunited:  report.Reunited,
		Archived:  report.Archived,
		CreatedTs: report.CreatedTs,
	}
}

// CreateReport accepts a multipart form with the report fields and an
// optional dogImage file.
func (s *ReportService) CreateReport(c echo.Context) error {
	category := store.Category(c.FormValue("category"))
	if !category.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "category must be Lost or Found")
	}

	ownerID, err := strconv.ParseInt(c.FormValue("ownerId"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "ownerId is required")
	}

	name := c.FormValue("name")
	breed := c.FormValue("breed")
	size := c.FormValue("size")
	gender := c.FormValue("gender")
	location := c.FormValue("location")
	if breed == "" || size == "" || gender == "" || location == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "all fields except details are required")
	}
	// A lost dog has a known name; a found dog usually doesn't.
	if category == store.CategoryLost && name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required for lost reports")
	}

	var imagePath *string
	if file, err := c.FormFile("dogImage"); err == nil {
		saved, err := s.saveImage(file, category)
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return httpErr
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to save image")
		}
		imagePath = &saved
	}

	report, err := s.Store.CreateReport(c.Request().Context(), &store.Report{
		UID:       shortuuid.New(),
		Category:  category,
		OwnerID:   int32(ownerID),
		Name:      name,
		Breed:     breed,
		Size:      size,
		Gender:    gender,
		Location:  location,
		Details:   c.FormValue("details"),
		ImagePath: imagePath,
		CreatedTs: time.Now().Unix(),
	})
	if err != nil {
		slog.Error("failed to create report", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create report")
	}

	// A new posting changes the active set; kick off a fresh pass.
	s.Engine.RunPassAsync(context.Background())
	return c.JSON(http.StatusCreated, convertReport(report))
}

func (s *ReportService) saveImage(file *multipart.FileHeader, category store.Category) (string, error) {
	mimeType := file.Header.Get("Content-Type")
	if !validImageTypes[mimeType] {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid file type, only PNG, JPEG and JPG are allowed")
	}
	if file.Size > maxUploadBytes {
		return "", echo.NewHTTPError(http.StatusBadRequest, "file size exceeds 10MB limit")
	}

	subdir := "lostDogs"
	if category == store.CategoryFound {
		subdir = "foundDogs"
	}
	dir := filepath.Join(s.Profile.Data, "uploads", subdir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", errors.Wrap(err, "failed to create upload directory")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", errors.Wrap(err, "failed to create image file")
	}
	defer dst.Close()

	src, err := file.Open()
	if err != nil {
		return "", errors.Wrap(err, "failed to open uploaded image")
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errors.Wrap(err, "failed to write image file")
	}
	return "/uploads/" + subdir + "/" + filename, nil
}

func (s *ReportService) ListReports(c echo.Context) error {
	find := &store.FindReport{}

	if category := c.QueryParam("category"); category != "" {
		cat := store.Category(category)
		if !cat.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "category must be Lost or Found")
		}
		find.Category = &cat
	}
	if owner := c.QueryParam("owner"); owner != "" {
		ownerID, err := strconv.ParseInt(owner, 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner id")
		}
		ownerID32 := int32(ownerID)
		find.OwnerID = &ownerID32
	}
	if c.QueryParam("active") == "true" {
		reunited, archived := false, false
		find.Reunited = &reunited
		find.Archived = &archived
	}

	reports, err := s.Store.ListReports(c.Request().Context(), find)
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list reports")
	}

	response := make([]*reportResponse, 0, len(reports))
	for _, report := range reports {
		response = append(response, convertReport(report))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *ReportService) GetReport(c echo.Context) error {
	petID, err := parsePetID(c)
	if err != nil {
		return err
	}

	reports, err := s.Store.ListReports(c.Request().Context(), &store.FindReport{PetID: &petID})
	if err != nil {
		slog.Error("failed to get report", "petId", petID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get report")
	}
	if len(reports) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, convertReport(reports[0]))
}

type updateReportRequest struct {
	Name      *string `json:"name"`
	Breed     *string `json:"breed"`
	Size      *string `json:"size"`
	Gender    *string `json:"gender"`
	Location  *string `json:"location"`
	Details   *string `json:"details"`
	ImagePath *string `json:"imagePath"`
	Archived  *bool   `json:"archived"`
}

func (s *ReportService) UpdateReport(c echo.Context) error {
	petID, err := parsePetID(c)
	if err != nil {
		return err
	}

	request := &updateReportRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	report, err := s.Store.UpdateReport(c.Request().Context(), &store.UpdateReport{
		PetID:     petID,
		Name:      request.Name,
		Breed:     request.Breed,
		Size:      request.Size,
		Gender:    request.Gender,
		Location:  request.Location,
		Details:   request.Details,
		ImagePath: request.ImagePath,
		Archived:  request.Archived,
	})
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		slog.Error("failed to update report", "petId", petID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update report")
	}

	// An updated image invalidates the cached fingerprint.
	if request.ImagePath != nil {
		if err := s.Store.DeleteReportFingerprint(c.Request().Context(), petID); err != nil {
			slog.Warn("failed to invalidate fingerprint cache", "petId", petID, "error", err)
		}
	}

	s.Engine.RunPassAsync(context.Background())
	return c.JSON(http.StatusOK, convertReport(report))
}

func (s *ReportService) DeleteReport(c echo.Context) error {
	petID, err := parsePetID(c)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteReport(c.Request().Context(), &store.DeleteReport{PetID: petID}); err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		slog.Error("failed to delete report", "petId", petID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete report")
	}

	s.Engine.RunPassAsync(context.Background())
	return c.NoContent(http.StatusNoContent)
}

func parsePetID(c echo.Context) (int32, error) {
	petID, err := strconv.ParseInt(c.Param("petId"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid pet id")
	}
	return int32(petID), nil
}
