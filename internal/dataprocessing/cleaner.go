package dataprocessing

import (
	"context"
	"log/slog"
	"sort"

	"epipulse/pkg/contracts/domain"
)

// FillSummary reports what the fill-missing step changed.
type FillSummary struct {
	AgesFilled  int `json:"ages_filled"`
	SexesFilled int `json:"sexes_filled"`
	TypesFilled int `json:"types_filled"`
	MedianAge   int `json:"median_age"`
}

// Changed reports whether the step touched any value.
func (s FillSummary) Changed() bool {
	return s.AgesFilled > 0 || s.SexesFilled > 0 || s.TypesFilled > 0
}

// Cleaner applies the default-fill rules for uploaded tables.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a cleaner with the given logger.
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		logger: logger.With(slog.String("component", "dataprocessing.cleaner")),
	}
}

// FillMissing replaces missing values with documented defaults and
// returns a new slice; the input is never mutated. Missing ages become
// the median of the present ages (0 when no row has one), missing sex
// becomes "unknown", and a missing infection type becomes
// "unspecified". The step is idempotent: a second pass finds nothing
// missing and changes nothing.
func (c *Cleaner) FillMissing(ctx context.Context, records []domain.PatientRecord) ([]domain.PatientRecord, FillSummary) {
	out := make([]domain.PatientRecord, len(records))
	copy(out, records)

	summary := FillSummary{MedianAge: medianAge(records)}

	for i := range out {
		if !out[i].HasAge() {
			out[i].Age = summary.MedianAge
			summary.AgesFilled++
		}
		if out[i].Sex != domain.SexMale && out[i].Sex != domain.SexFemale && out[i].Sex != domain.SexUnknown {
			out[i].Sex = domain.SexUnknown
			summary.SexesFilled++
		}
		if out[i].InfectionType == domain.InfectionTypeMissing {
			out[i].InfectionType = domain.InfectionTypeUnspecified
			summary.TypesFilled++
		}
	}

	if summary.Changed() {
		c.logger.InfoContext(ctx, "filled missing values",
			slog.Int("ages_filled", summary.AgesFilled),
			slog.Int("sexes_filled", summary.SexesFilled),
			slog.Int("types_filled", summary.TypesFilled),
			slog.Int("median_age", summary.MedianAge))
	}

	return out, summary
}

// medianAge returns the median of the usable ages, or 0 when none
// exist. For an even count the lower middle value is used, keeping the
// result an age that could plausibly appear in the data.
func medianAge(records []domain.PatientRecord) int {
	ages := make([]int, 0, len(records))
	for _, r := range records {
		if r.HasAge() {
			ages = append(ages, r.Age)
		}
	}
	if len(ages) == 0 {
		return 0
	}
	sort.Ints(ages)
	return ages[(len(ages)-1)/2]
}
