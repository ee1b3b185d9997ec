package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"epipulse/internal/dataprocessing"
	apperrors "epipulse/internal/errors"
	"epipulse/internal/simulation"
	"epipulse/pkg/contracts/domain"
)

// DatasetNotifier is told when a session's dataset is replaced, so
// open dashboard connections can refresh. The websocket hub implements
// it; tests use a stub.
type DatasetNotifier interface {
	NotifyDatasetUpdate(sessionID string, dataset *domain.Dataset)
}

// TypeCount is one bar of the infection-type chart.
type TypeCount struct {
	InfectionType string `json:"infection_type"`
	Count         int    `json:"count"`
}

// DemographicCount is one cell of the sex/age-bucket breakdown.
type DemographicCount struct {
	Sex       domain.Sex `json:"sex"`
	AgeBucket string     `json:"age_bucket"`
	Count     int        `json:"count"`
}

// DailyPoint is one point of the infections-over-time line chart.
type DailyPoint struct {
	Date     string `json:"date"`
	Infected int    `json:"infected"`
}

// DailyTypeCount is one segment of the stacked daily bar chart.
type DailyTypeCount struct {
	Date          string `json:"date"`
	InfectionType string `json:"infection_type"`
	Count         int    `json:"count"`
}

// SummaryView is everything the summary charts need for one filter.
type SummaryView struct {
	DatasetID    string             `json:"dataset_id"`
	Source       domain.DatasetSource `json:"source"`
	TotalRows    int                `json:"total_rows"`
	FilteredRows int                `json:"filtered_rows"`
	Filter       string             `json:"filter"`
	ByType       []TypeCount        `json:"by_type"`
	Demographics []DemographicCount `json:"demographics"`
	Daily        []DailyPoint       `json:"daily"`
	DailyByType  []DailyTypeCount   `json:"daily_by_type"`
}

// HeatmapView is the geographic density payload for one filter.
type HeatmapView struct {
	DatasetID   string                        `json:"dataset_id"`
	Filter      string                        `json:"filter"`
	ShowingRows int                           `json:"showing_rows"`
	DroppedRows int                           `json:"dropped_rows"`
	CenterLat   float64                       `json:"center_lat"`
	CenterLng   float64                       `json:"center_lng"`
	Points      []dataprocessing.HeatmapPoint `json:"points"`
}

// UploadResult pairs the stored dataset with the fill report so the
// UI can tell the user what was defaulted.
type UploadResult struct {
	Dataset *domain.Dataset        `json:"dataset"`
	Fill    dataprocessing.FillSummary `json:"fill"`
}

// DatasetService owns the per-session working datasets. Each session
// holds at most one dataset; a new simulation run or upload replaces
// it wholesale.
type DatasetService struct {
	generator  *simulation.Generator
	cleaner    *dataprocessing.Cleaner
	aggregator *dataprocessing.Aggregator
	decoder    *dataprocessing.Decoder
	notifier   DatasetNotifier
	logger     *slog.Logger

	mu       sync.RWMutex
	datasets map[string]*domain.Dataset
}

// NewDatasetService creates the dataset service. notifier may be nil.
func NewDatasetService(
	generator *simulation.Generator,
	cleaner *dataprocessing.Cleaner,
	aggregator *dataprocessing.Aggregator,
	decoder *dataprocessing.Decoder,
	notifier DatasetNotifier,
	logger *slog.Logger,
) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetService{
		generator:  generator,
		cleaner:    cleaner,
		aggregator: aggregator,
		decoder:    decoder,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "dataset_service")),
		datasets:   make(map[string]*domain.Dataset),
	}
}

// Simulate runs the generator and installs the result as the session's
// working dataset.
func (s *DatasetService) Simulate(ctx context.Context, sessionID string, params simulation.Params) (*domain.Dataset, error) {
	records, err := s.generator.Generate(ctx, params)
	if err != nil {
		return nil, err
	}

	dataset := &domain.Dataset{
		ID:        uuid.New().String(),
		Source:    domain.SourceSimulated,
		Name:      "simulated",
		CreatedAt: time.Now().UTC(),
		Records:   records,
	}

	s.install(ctx, sessionID, dataset)
	return dataset, nil
}

// Upload decodes and cleans an uploaded clinic table, then installs it
// as the session's working dataset.
func (s *DatasetService) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*UploadResult, error) {
	records, dropped, err := s.decoder.Decode(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewEmptyDatasetError("uploaded file contains no usable rows")
	}

	cleaned, fill := s.cleaner.FillMissing(ctx, records)

	dataset := &domain.Dataset{
		ID:          uuid.New().String(),
		Source:      domain.SourceUploaded,
		Name:        filename,
		CreatedAt:   time.Now().UTC(),
		Records:     cleaned,
		DroppedRows: dropped,
	}

	s.install(ctx, sessionID, dataset)
	return &UploadResult{Dataset: dataset, Fill: fill}, nil
}

// Current returns the session's working dataset.
func (s *DatasetService) Current(ctx context.Context, sessionID string) (*domain.Dataset, error) {
	s.mu.RLock()
	dataset := s.datasets[sessionID]
	s.mu.RUnlock()

	if dataset == nil {
		return nil, apperrors.NewEmptyDatasetError("no dataset yet; run a simulation or upload a file")
	}
	return dataset, nil
}

// Preview returns the first n records of the session's dataset.
func (s *DatasetService) Preview(ctx context.Context, sessionID string, n int) ([]domain.PatientRecord, error) {
	dataset, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(dataset.Records) {
		n = len(dataset.Records)
	}
	return dataset.Records[:n], nil
}

// Summary computes the chart aggregations over the session's dataset,
// optionally filtered to one infection type. Filtering to zero rows is
// not an error; the charts render an empty state.
func (s *DatasetService) Summary(ctx context.Context, sessionID, infectionType string) (*SummaryView, error) {
	dataset, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	filtered := s.aggregator.FilterByType(dataset.Records, infectionType)

	view := &SummaryView{
		DatasetID:    dataset.ID,
		Source:       dataset.Source,
		TotalRows:    len(dataset.Records),
		FilteredRows: len(filtered),
		Filter:       normalizeFilter(infectionType),
		ByType:       sortedTypeCounts(s.aggregator.CountByType(filtered)),
		Demographics: sortedDemographics(s.aggregator.CountByDemographic(filtered)),
		Daily:        sortedDaily(s.aggregator.InfectedByDate(filtered)),
		DailyByType:  sortedDailyByType(s.aggregator.CountByDateType(filtered)),
	}
	return view, nil
}

// Heatmap computes the geographic density view over the session's
// dataset, optionally filtered to one infection type.
func (s *DatasetService) Heatmap(ctx context.Context, sessionID, infectionType string) (*HeatmapView, error) {
	dataset, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	filtered := s.aggregator.FilterByType(dataset.Records, infectionType)
	points, dropped := s.aggregator.HeatmapPoints(ctx, filtered)
	centerLat, centerLng := s.aggregator.ViewCenter(filtered)

	return &HeatmapView{
		DatasetID:   dataset.ID,
		Filter:      normalizeFilter(infectionType),
		ShowingRows: len(filtered) - dropped,
		DroppedRows: dropped,
		CenterLat:   centerLat,
		CenterLng:   centerLng,
		Points:      points,
	}, nil
}

// InfectionTypes lists the distinct infection types present in the
// session's dataset, for the filter dropdown.
func (s *DatasetService) InfectionTypes(ctx context.Context, sessionID string) ([]string, error) {
	dataset, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	counts := s.aggregator.CountByType(dataset.Records)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

func (s *DatasetService) install(ctx context.Context, sessionID string, dataset *domain.Dataset) {
	s.mu.Lock()
	s.datasets[sessionID] = dataset
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "dataset installed",
		slog.String("session_id", sessionID),
		slog.String("dataset_id", dataset.ID),
		slog.String("source", string(dataset.Source)),
		slog.Int("records", len(dataset.Records)))

	if s.notifier != nil {
		s.notifier.NotifyDatasetUpdate(sessionID, dataset)
	}
}

func normalizeFilter(infectionType string) string {
	if infectionType == "" {
		return dataprocessing.FilterAll
	}
	return infectionType
}

func sortedTypeCounts(counts map[string]int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{InfectionType: t, Count: n})
	}
	// Tallest bar first, matching the dashboard's sorted bar chart.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].InfectionType < out[j].InfectionType
	})
	return out
}

func sortedDemographics(counts map[dataprocessing.DemographicKey]int) []DemographicCount {
	out := make([]DemographicCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DemographicCount{Sex: k.Sex, AgeBucket: k.AgeBucket, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgeBucket != out[j].AgeBucket {
			return out[i].AgeBucket < out[j].AgeBucket
		}
		return out[i].Sex < out[j].Sex
	})
	return out
}

func sortedDaily(counts map[string]int) []DailyPoint {
	out := make([]DailyPoint, 0, len(counts))
	for date, n := range counts {
		out = append(out, DailyPoint{Date: date, Infected: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func sortedDailyByType(counts map[dataprocessing.DailyKey]int) []DailyTypeCount {
	out := make([]DailyTypeCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DailyTypeCount{Date: k.Date, InfectionType: k.InfectionType, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].InfectionType < out[j].InfectionType
	})
	return out
}
