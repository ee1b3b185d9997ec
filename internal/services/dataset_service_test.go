package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epipulse/internal/dataprocessing"
	apperrors "epipulse/internal/errors"
	"epipulse/internal/simulation"
	"epipulse/pkg/contracts/domain"
)

type stubNotifier struct {
	mu      sync.Mutex
	updates []string
}

func (s *stubNotifier) NotifyDatasetUpdate(sessionID string, dataset *domain.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, sessionID)
}

func (s *stubNotifier) sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.updates...)
}

func newTestService(notifier DatasetNotifier) *DatasetService {
	logger := slog.Default()
	return NewDatasetService(
		simulation.NewGenerator(logger),
		dataprocessing.NewCleaner(logger),
		dataprocessing.NewAggregator(logger),
		dataprocessing.NewDecoder(logger, 10000),
		notifier,
		logger,
	)
}

func TestDatasetService_Simulate(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(notifier)
	ctx := context.Background()

	dataset, err := svc.Simulate(ctx, "session-a", simulation.Params{
		CaseCount:     100,
		InfectionRate: 0.3,
		DayCount:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSimulated, dataset.Source)
	assert.Len(t, dataset.Records, 100)
	assert.Equal(t, []string{"session-a"}, notifier.sessions())

	current, err := svc.Current(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, dataset.ID, current.ID)
}

func TestDatasetService_SessionIsolation(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "session-a", simulation.Params{CaseCount: 10, InfectionRate: 0.5, DayCount: 5})
	require.NoError(t, err)

	_, err = svc.Current(ctx, "session-b")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindEmptyDataset))
}

func TestDatasetService_ReplacesDataset(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	first, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 10, InfectionRate: 0.5, DayCount: 5})
	require.NoError(t, err)
	second, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 20, InfectionRate: 0.5, DayCount: 5})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	current, err := svc.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Len(t, current.Records, 20)
}

func TestDatasetService_Upload(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(notifier)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"Age,Sex,Latitude,Longitude,Type of Infection,Diagnosis Date",
		"34,F,-29.71,25.91,Waterborne Infections,2025-10-01",
		"51,,-29.80,26.11,Skin Infections,2025-10-02",
		",M,-29.75,26.00,,2025-10-02",
	}, "\n")

	result, err := svc.Upload(ctx, "s", "clinic.csv", strings.NewReader(csvData))
	require.NoError(t, err)

	dataset := result.Dataset
	assert.Equal(t, domain.SourceUploaded, dataset.Source)
	assert.Equal(t, "clinic.csv", dataset.Name)
	require.Len(t, dataset.Records, 3)

	// Cleaning ran before install.
	assert.Equal(t, 1, result.Fill.SexesFilled)
	assert.Equal(t, 1, result.Fill.TypesFilled)
	assert.Equal(t, 1, result.Fill.AgesFilled)
	for _, r := range dataset.Records {
		assert.NotEqual(t, domain.Sex(""), r.Sex)
		assert.NotEqual(t, domain.InfectionTypeMissing, r.InfectionType)
		assert.True(t, r.HasAge())
	}

	assert.Equal(t, []string{"s"}, notifier.sessions())
}

func TestDatasetService_UploadScenario_MissingSexFilled(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"Latitude,Longitude,Diagnosis Date,Sex",
		"-29.7,26.0,2025-10-01,M",
		"-29.7,26.0,2025-10-01,",
		"-29.7,26.0,2025-10-02,F",
		"-29.7,26.0,2025-10-02,",
		"-29.7,26.0,2025-10-03,F",
	}, "\n")

	result, err := svc.Upload(ctx, "s", "teams.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, result.Dataset.Records, 5)

	unknown := 0
	for _, r := range result.Dataset.Records {
		if r.Sex == domain.SexUnknown {
			unknown++
		}
	}
	assert.Equal(t, 2, unknown)
}

func TestDatasetService_Summary(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 200, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	view, err := svc.Summary(ctx, "s", "")
	require.NoError(t, err)
	assert.Equal(t, "all", view.Filter)
	assert.Equal(t, 200, view.TotalRows)
	assert.Equal(t, 200, view.FilteredRows)

	// Type counts sum back to the filtered total.
	total := 0
	for _, tc := range view.ByType {
		total += tc.Count
	}
	assert.Equal(t, view.FilteredRows, total)

	total = 0
	for _, dc := range view.Demographics {
		total += dc.Count
	}
	assert.Equal(t, view.FilteredRows, total)

	// Tallest bar first.
	for i := 1; i < len(view.ByType); i++ {
		assert.GreaterOrEqual(t, view.ByType[i-1].Count, view.ByType[i].Count)
	}

	// Daily points arrive date-sorted.
	for i := 1; i < len(view.Daily); i++ {
		assert.Less(t, view.Daily[i-1].Date, view.Daily[i].Date)
	}
}

func TestDatasetService_SummaryFiltered(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 200, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	target := "Waterborne Infections"
	view, err := svc.Summary(ctx, "s", target)
	require.NoError(t, err)
	assert.Equal(t, target, view.Filter)
	assert.LessOrEqual(t, view.FilteredRows, view.TotalRows)
	for _, tc := range view.ByType {
		assert.Equal(t, target, tc.InfectionType)
	}
}

func TestDatasetService_SummaryWithoutDataset(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.Summary(context.Background(), "nobody", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindEmptyDataset))
}

func TestDatasetService_Heatmap(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 300, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	view, err := svc.Heatmap(ctx, "s", "")
	require.NoError(t, err)
	assert.Equal(t, 0, view.DroppedRows)
	assert.Equal(t, 300, view.ShowingRows)
	assert.NotEmpty(t, view.Points)

	// Generated coordinates keep the center inside the bounding box.
	assert.InDelta(t, -29.75, view.CenterLat, 0.25)
	assert.InDelta(t, 26.0, view.CenterLng, 0.5)

	total := 0
	for _, p := range view.Points {
		total += p.Count
	}
	assert.Equal(t, 300, total)
}

func TestDatasetService_HeatmapEmptyFilterFallsBackToDistrictCenter(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 50, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	view, err := svc.Heatmap(ctx, "s", "no-such-type")
	require.NoError(t, err)
	assert.Equal(t, 0, view.ShowingRows)
	assert.Empty(t, view.Points)
	assert.Equal(t, -29.75, view.CenterLat)
	assert.Equal(t, 26.0, view.CenterLng)
}

func TestDatasetService_Preview(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 50, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	preview, err := svc.Preview(ctx, "s", 5)
	require.NoError(t, err)
	assert.Len(t, preview, 5)

	all, err := svc.Preview(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

func TestDatasetService_InfectionTypes(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Simulate(ctx, "s", simulation.Params{CaseCount: 500, InfectionRate: 0.5, DayCount: 10})
	require.NoError(t, err)

	types, err := svc.InfectionTypes(ctx, "s")
	require.NoError(t, err)
	assert.NotEmpty(t, types)
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1], types[i])
	}
	for _, tp := range types {
		assert.Contains(t, domain.InfectionTypes, tp)
	}
}
