package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epipulse/internal/dataprocessing"
	apierrors "epipulse/internal/errors"
	"epipulse/internal/middleware"
	"epipulse/internal/services"
	"epipulse/internal/simulation"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	logger := slog.Default()
	service := services.NewDatasetService(
		simulation.NewGenerator(logger),
		dataprocessing.NewCleaner(logger),
		dataprocessing.NewAggregator(logger),
		dataprocessing.NewDecoder(logger, 10000),
		nil,
		logger,
	)
	handler := NewDatasetHandler(service, logger, apierrors.NewErrorHandler(logger), 1<<20)

	r := chi.NewRouter()
	r.Use(middleware.Session)
	r.Mount("/api", handler.Routes())
	return r
}

// do runs a request through the router, carrying the session cookie
// across calls the way a browser would.
func do(t *testing.T, router chi.Router, req *http.Request, cookies []*http.Cookie) (*httptest.ResponseRecorder, []*http.Cookie) {
	t.Helper()

	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Result().Cookies(); len(got) > 0 {
		cookies = got
	}
	return rec, cookies
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDatasetHandler_Simulate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation",
		strings.NewReader(`{"case_count": 50, "infection_rate": 0.4, "day_count": 14}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(t, router, req, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "simulated", body["source"])
	assert.Equal(t, float64(50), body["total_rows"])
	assert.NotEmpty(t, body["id"])

	preview, ok := body["preview"].([]interface{})
	require.True(t, ok)
	assert.Len(t, preview, defaultPreviewRows)
}

func TestDatasetHandler_SimulateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero cases", `{"case_count": 0, "infection_rate": 0.4, "day_count": 14}`},
		{"rate above one", `{"case_count": 10, "infection_rate": 1.5, "day_count": 14}`},
		{"missing day count", `{"case_count": 10, "infection_rate": 0.4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t)
			req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec, _ := do(t, router, req, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
			body := decodeBody(t, rec)
			assert.Equal(t, apierrors.TypeValidation, body["type"])
		})
	}
}

func TestDatasetHandler_SimulateBadJSON(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(t, router, req, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetHandler_CurrentWithoutDataset(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/current", nil)
	rec, _ := do(t, router, req, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, apierrors.TypeEmptyDataset, body["type"])
}

func TestDatasetHandler_SessionIsolation(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation",
		strings.NewReader(`{"case_count": 10, "infection_rate": 0.5, "day_count": 5}`))
	req.Header.Set("Content-Type", "application/json")
	rec, cookies := do(t, router, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, cookies)

	// Same session sees the dataset.
	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current", nil)
	rec, _ = do(t, router, req, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A fresh session does not.
	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current", nil)
	rec, _ = do(t, router, req, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetHandler_Upload(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clinic.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(strings.Join([]string{
		"Age,Sex,Latitude,Longitude,Type of Infection,Diagnosis Date",
		"34,F,-29.71,25.91,Waterborne Infections,2025-10-01",
		",M,-29.80,26.11,,2025-10-02",
	}, "\n")))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, cookies := do(t, router, req, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "uploaded", body["source"])
	assert.Equal(t, "clinic.csv", body["name"])
	assert.Equal(t, float64(2), body["total_rows"])
	require.NotNil(t, body["fill"])

	fill, ok := body["fill"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), fill["ages_filled"])
	assert.Equal(t, float64(1), fill["types_filled"])

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current", nil)
	rec, _ = do(t, router, req, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDatasetHandler_UploadMissingFile(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, _ := do(t, router, req, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, apierrors.TypeValidation, body["type"])
}

func TestDatasetHandler_UploadUnreadable(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "empty.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(""))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, _ := do(t, router, req, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetHandler_SummaryAndHeatmap(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation",
		strings.NewReader(`{"case_count": 200, "infection_rate": 0.5, "day_count": 10}`))
	req.Header.Set("Content-Type", "application/json")
	rec, cookies := do(t, router, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/summary", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)
	assert.Equal(t, "all", summary["filter"])
	assert.Equal(t, float64(200), summary["total_rows"])
	assert.NotEmpty(t, summary["by_type"])
	assert.NotEmpty(t, summary["daily"])

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/summary?type=Waterborne+Infections", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	summary = decodeBody(t, rec)
	assert.Equal(t, "Waterborne Infections", summary["filter"])

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/heatmap", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	heatmap := decodeBody(t, rec)
	assert.Equal(t, float64(200), heatmap["showing_rows"])
	assert.NotEmpty(t, heatmap["points"])

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/types", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decodeBody(t, rec)
	assert.NotEmpty(t, types["types"])
}

func TestDatasetHandler_Export(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation",
		strings.NewReader(`{"case_count": 20, "infection_rate": 0.5, "day_count": 5}`))
	req.Header.Set("Content-Type", "application/json")
	rec, cookies := do(t, router, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/export", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "patients.csv")
	// BOM then header row.
	assert.Contains(t, rec.Body.String(), "Patient ID,Day,Diagnosis Date")

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/export?format=xlsx", nil)
	rec, _ = do(t, router, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")

	req = httptest.NewRequest(http.MethodGet, "/api/datasets/current/export?format=pdf", nil)
	rec, _ = do(t, router, req, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetHandler_PreviewParam(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation?preview=10",
		strings.NewReader(`{"case_count": 50, "infection_rate": 0.4, "day_count": 14}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(t, router, req, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	preview, ok := body["preview"].([]interface{})
	require.True(t, ok)
	assert.Len(t, preview, 10)
}
