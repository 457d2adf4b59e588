package v1

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func multipartRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func TestCreateReportRejectsInvalidCategory(t *testing.T) {
	e := echo.New()
	service := &ReportService{}

	req := multipartRequest(t, map[string]string{"category": "Stolen"})
	rec := httptest.NewRecorder()
	err := service.CreateReport(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestCreateReportRequiresName(t *testing.T) {
	e := echo.New()
	service := &ReportService{}

	// A lost report without the dog's name is rejected.
	req := multipartRequest(t, map[string]string{
		"category": "Lost",
		"ownerId":  "7",
		"breed":    "Labrador",
		"size":     "Large",
		"gender":   "Male",
		"location": "Central Park",
	})
	rec := httptest.NewRecorder()
	err := service.CreateReport(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
	require.Contains(t, httpErr.Message, "name is required")
}

func TestCreateReportRequiresOwner(t *testing.T) {
	e := echo.New()
	service := &ReportService{}

	req := multipartRequest(t, map[string]string{"category": "Found"})
	rec := httptest.NewRecorder()
	err := service.CreateReport(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestListReportsRejectsInvalidCategory(t *testing.T) {
	e := echo.New()
	service := &ReportService{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports?category=Stolen", nil)
	rec := httptest.NewRecorder()
	err := service.ListReports(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestParsePetID(t *testing.T) {
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("petId")
	c.SetParamValues("42")
	petID, err := parsePetID(c)
	require.NoError(t, err)
	require.Equal(t, int32(42), petID)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("petId")
	c.SetParamValues("not-a-number")
	_, err = parsePetID(c)
	require.Error(t, err)
}

func TestConfirmMatchValidation(t *testing.T) {
	e := echo.New()
	service := &MatchService{}

	for _, body := range []string{
		`{"petId1": 0, "petId2": 2}`,
		`{"petId1": 1, "petId2": 0}`,
		`{"petId1": 3, "petId2": 3}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/matches/confirm", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		err := service.ConfirmMatch(e.NewContext(req, rec))

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr, "body %s must be rejected", body)
		require.Equal(t, http.StatusBadRequest, httpErr.Code)
	}
}
