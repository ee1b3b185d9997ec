// Package simulation generates synthetic mobile-clinic datasets for the
// dashboard's learning mode. Output is deterministic for a given seed so
// chart snapshots and tests are reproducible.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"epipulse/internal/errors"
	"epipulse/pkg/contracts/domain"
)

// DefaultSeed is used when a request does not pin its own seed.
const DefaultSeed = 42

// Bounding box and epoch for generated data. The coordinates cover the
// rural district the mobile clinic pilot operates in.
const (
	minLatitude  = -30.0
	maxLatitude  = -29.5
	minLongitude = 25.5
	maxLongitude = 26.5

	maxAge = 90
)

var epochDate = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)

// Params controls one simulation run.
type Params struct {
	CaseCount     int     `json:"case_count" validate:"required,gt=0,lte=100000"`
	InfectionRate float64 `json:"infection_rate" validate:"gte=0,lte=1"`
	DayCount      int     `json:"day_count" validate:"required,gt=0,lte=3650"`
	Seed          int64   `json:"seed,omitempty"`
}

// Validate checks parameter ranges without relying on the transport
// layer, so the generator is safe to call from CLI code too.
func (p Params) Validate() error {
	if p.CaseCount <= 0 {
		return errors.NewInvalidParameterError("case_count", fmt.Sprintf("must be positive, got %d", p.CaseCount))
	}
	if p.InfectionRate < 0 || p.InfectionRate > 1 {
		return errors.NewInvalidParameterError("infection_rate", fmt.Sprintf("must be in [0,1], got %g", p.InfectionRate))
	}
	if p.DayCount <= 0 {
		return errors.NewInvalidParameterError("day_count", fmt.Sprintf("must be positive, got %d", p.DayCount))
	}
	return nil
}

// Generator produces synthetic patient datasets.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a generator with the given logger.
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		logger: logger.With(slog.String("component", "simulation.generator")),
	}
}

// Generate produces exactly params.CaseCount records. Each record draws
// its day uniformly from [0, DayCount), demographic fields and
// coordinates from fixed uniform ranges, and is marked infected by an
// independent Bernoulli draw with probability InfectionRate. Records
// are sorted by day, so day is monotonically non-decreasing in the
// returned slice. Output is fully determined by params (including Seed;
// zero means DefaultSeed) and never touches global random state.
func (g *Generator) Generate(ctx context.Context, params Params) ([]domain.PatientRecord, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	seed := params.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := rand.New(rand.NewSource(seed))

	g.logger.InfoContext(ctx, "generating synthetic dataset",
		slog.Int("case_count", params.CaseCount),
		slog.Float64("infection_rate", params.InfectionRate),
		slog.Int("day_count", params.DayCount),
		slog.Int64("seed", seed))

	records := make([]domain.PatientRecord, params.CaseCount)
	for i := range records {
		day := rng.Intn(params.DayCount)
		records[i] = domain.PatientRecord{
			Day:           day,
			DiagnosisDate: epochDate.AddDate(0, 0, day),
			Age:           rng.Intn(maxAge),
			Sex:           pickSex(rng),
			Latitude:      minLatitude + rng.Float64()*(maxLatitude-minLatitude),
			Longitude:     minLongitude + rng.Float64()*(maxLongitude-minLongitude),
			Infected:      rng.Float64() < params.InfectionRate,
			InfectionType: domain.InfectionTypes[rng.Intn(len(domain.InfectionTypes))],
		}
	}

	// Stable sort keeps the draw order within a day, then IDs are
	// assigned sequentially over the final ordering.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Day < records[j].Day
	})
	for i := range records {
		records[i].ID = i + 1
	}

	return records, nil
}

func pickSex(rng *rand.Rand) domain.Sex {
	if rng.Intn(2) == 0 {
		return domain.SexMale
	}
	return domain.SexFemale
}
