// Package http exposes the dashboard API: simulation runs, clinic file
// uploads, and the aggregated views the charts fetch.
package http

import (
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "epipulse/internal/errors"
	"epipulse/internal/exporter"
	"epipulse/internal/middleware"
	"epipulse/internal/services"
	"epipulse/internal/simulation"
	"epipulse/pkg/contracts/domain"
)

// defaultPreviewRows caps the sample table shown above the charts
const defaultPreviewRows = 5

// DatasetHandler handles dataset-related HTTP requests
type DatasetHandler struct {
	service      *services.DatasetService
	exporter     *exporter.Writer
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate
	maxUpload    int64
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(service *services.DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxUpload int64) *DatasetHandler {
	v := validator.New()
	// Use JSON tag names in validation error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &DatasetHandler{
		service:      service,
		exporter:     exporter.NewWriter(logger),
		logger:       logger.With(slog.String("component", "dataset_handler")),
		errorHandler: errorHandler,
		validate:     v,
		maxUpload:    maxUpload,
	}
}

// Routes returns the dataset routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/simulation", h.Simulate)

	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Route("/current", func(r chi.Router) {
			r.Get("/", h.Current)
			r.Get("/summary", h.Summary)
			r.Get("/heatmap", h.Heatmap)
			r.Get("/types", h.Types)
			r.Get("/export", h.Export)
		})
	})

	return r
}

// DatasetResponse describes the active dataset plus a preview sample.
type DatasetResponse struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Name        string                 `json:"name"`
	CreatedAt   string                 `json:"created_at"`
	TotalRows   int                    `json:"total_rows"`
	DroppedRows int                    `json:"dropped_rows"`
	Preview     interface{}            `json:"preview"`
	Fill        interface{}            `json:"fill,omitempty"`
}

// Simulate handles POST /api/simulation
func (h *DatasetHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	var params simulation.Params
	if err := render.DecodeJSON(r.Body, &params); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewParsingError("request body is not valid JSON", err))
		return
	}
	if err := h.validate.Struct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	dataset, err := h.service.Simulate(r.Context(), sessionID, params)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "simulation completed",
		slog.String("session_id", sessionID),
		slog.String("dataset_id", dataset.ID),
		slog.Int("records", len(dataset.Records)))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, datasetResponse(dataset, nil, previewCount(r)))
}

// Upload handles POST /api/datasets (multipart form, field "file")
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewInvalidParameterError("file",
			"upload must be a multipart form within the size limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewInvalidParameterError("file", "missing file field"))
		return
	}
	defer file.Close()

	result, err := h.service.Upload(r.Context(), sessionID, header.Filename, file)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "upload completed",
		slog.String("session_id", sessionID),
		slog.String("filename", header.Filename),
		slog.Int("records", len(result.Dataset.Records)),
		slog.Int("dropped", result.Dataset.DroppedRows))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, datasetResponse(result.Dataset, result, previewCount(r)))
}

// Current handles GET /api/datasets/current
func (h *DatasetHandler) Current(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	dataset, err := h.service.Current(r.Context(), sessionID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, datasetResponse(dataset, nil, previewCount(r)))
}

// Summary handles GET /api/datasets/current/summary?type=X&preview=n
func (h *DatasetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	view, err := h.service.Summary(r.Context(), sessionID, r.URL.Query().Get("type"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, view)
}

// Heatmap handles GET /api/datasets/current/heatmap?type=X
func (h *DatasetHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	view, err := h.service.Heatmap(r.Context(), sessionID, r.URL.Query().Get("type"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, view)
}

// Types handles GET /api/datasets/current/types
func (h *DatasetHandler) Types(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	types, err := h.service.InfectionTypes(r.Context(), sessionID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{"types": types})
}

// Export handles GET /api/datasets/current/export?format=csv|xlsx
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	format := r.URL.Query().Get("format")
	if format == "" {
		format = exporter.FormatCSV
	}
	contentType := exporter.ContentType(format)
	if contentType == "" {
		h.errorHandler.HandleError(w, r, apierrors.NewInvalidParameterError("format",
			"format must be csv or xlsx"))
		return
	}

	dataset, err := h.service.Current(r.Context(), sessionID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="patients.`+format+`"`)

	opts := exporter.Options{Format: format, BOMPrefix: format == exporter.FormatCSV}
	if err := h.exporter.Write(r.Context(), w, dataset, opts); err != nil {
		// Headers are gone; log instead of rendering a problem mid-stream.
		h.logger.ErrorContext(r.Context(), "export failed",
			slog.String("dataset_id", dataset.ID),
			slog.String("error", err.Error()))
	}
}

func datasetResponse(dataset *domain.Dataset, upload *services.UploadResult, preview int) *DatasetResponse {
	if preview <= 0 || preview > len(dataset.Records) {
		preview = len(dataset.Records)
	}

	resp := &DatasetResponse{
		ID:          dataset.ID,
		Source:      string(dataset.Source),
		Name:        dataset.Name,
		CreatedAt:   dataset.CreatedAt.Format(time.RFC3339),
		TotalRows:   len(dataset.Records),
		DroppedRows: dataset.DroppedRows,
		Preview:     dataset.Records[:preview],
	}
	if upload != nil {
		resp.Fill = upload.Fill
	}
	return resp
}

func previewCount(r *http.Request) int {
	if raw := r.URL.Query().Get("preview"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultPreviewRows
}
