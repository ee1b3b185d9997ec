package simulation

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "epipulse/internal/errors"
	"epipulse/pkg/contracts/domain"
)

func TestGenerate_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		field  string
	}{
		{
			name:   "zero case count",
			params: Params{CaseCount: 0, InfectionRate: 0.5, DayCount: 10},
			field:  "case_count",
		},
		{
			name:   "negative case count",
			params: Params{CaseCount: -5, InfectionRate: 0.5, DayCount: 10},
			field:  "case_count",
		},
		{
			name:   "rate above one",
			params: Params{CaseCount: 10, InfectionRate: 1.5, DayCount: 10},
			field:  "infection_rate",
		},
		{
			name:   "negative rate",
			params: Params{CaseCount: 10, InfectionRate: -0.1, DayCount: 10},
			field:  "infection_rate",
		},
		{
			name:   "zero day count",
			params: Params{CaseCount: 10, InfectionRate: 0.5, DayCount: 0},
			field:  "day_count",
		},
	}

	g := NewGenerator(slog.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := g.Generate(context.Background(), tt.params)
			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidParameter))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestGenerate_CaseCountAndDayRange(t *testing.T) {
	g := NewGenerator(slog.Default())

	records, err := g.Generate(context.Background(), Params{
		CaseCount:     100,
		InfectionRate: 0.3,
		DayCount:      10,
	})
	require.NoError(t, err)
	require.Len(t, records, 100)

	for _, r := range records {
		assert.GreaterOrEqual(t, r.Day, 0)
		assert.Less(t, r.Day, 10)
		assert.GreaterOrEqual(t, r.Age, 0)
		assert.Less(t, r.Age, 90)
		assert.Contains(t, []domain.Sex{domain.SexMale, domain.SexFemale}, r.Sex)
		assert.Contains(t, domain.InfectionTypes, r.InfectionType)
		assert.True(t, r.HasLocation())
		assert.InDelta(t, -29.75, r.Latitude, 0.25)
		assert.InDelta(t, 26.0, r.Longitude, 0.5)
		assert.Equal(t, r.DiagnosisDate.Sub(records[0].DiagnosisDate).Hours()/24,
			float64(r.Day-records[0].Day))
	}
}

func TestGenerate_DaysMonotonic(t *testing.T) {
	g := NewGenerator(slog.Default())

	records, err := g.Generate(context.Background(), Params{
		CaseCount:     500,
		InfectionRate: 0.5,
		DayCount:      30,
	})
	require.NoError(t, err)

	for i := 1; i < len(records); i++ {
		assert.LessOrEqual(t, records[i-1].Day, records[i].Day)
	}
	for i, r := range records {
		assert.Equal(t, i+1, r.ID)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(slog.Default())
	params := Params{CaseCount: 250, InfectionRate: 0.4, DayCount: 20, Seed: 7}

	first, err := g.Generate(context.Background(), params)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Zero seed falls back to the fixed default, still deterministic.
	params.Seed = 0
	third, err := g.Generate(context.Background(), params)
	require.NoError(t, err)
	fourth, err := g.Generate(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, third, fourth)
	assert.NotEqual(t, first, third)
}

func TestGenerate_InfectionRateExtremes(t *testing.T) {
	g := NewGenerator(slog.Default())

	none, err := g.Generate(context.Background(), Params{CaseCount: 200, InfectionRate: 0, DayCount: 10})
	require.NoError(t, err)
	for _, r := range none {
		assert.False(t, r.Infected)
	}

	all, err := g.Generate(context.Background(), Params{CaseCount: 200, InfectionRate: 1, DayCount: 10})
	require.NoError(t, err)
	for _, r := range all {
		assert.True(t, r.Infected)
	}
}
