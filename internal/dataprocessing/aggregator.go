package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"epipulse/pkg/contracts/domain"
)

// FilterAll selects every row when passed to FilterByType.
const FilterAll = "all"

// Coordinates are snapped to a fixed-precision grid before counting,
// roughly 1.1 km cells at this precision.
const gridPrecision = 2

// DemographicKey groups records by sex and 10-year age bucket.
type DemographicKey struct {
	Sex       domain.Sex `json:"sex"`
	AgeBucket string     `json:"age_bucket"`
}

// DailyKey groups records by diagnosis date and infection type.
type DailyKey struct {
	Date          string `json:"date"`
	InfectionType string `json:"infection_type"`
}

// HeatmapPoint is one grid cell of the geographic density view.
type HeatmapPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

// Aggregator produces the grouped views the charts consume. All
// methods are pure and order-independent: reordering the input rows
// never changes a result.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an aggregator with the given logger.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger: logger.With(slog.String("component", "dataprocessing.aggregator")),
	}
}

// FilterByType returns the rows whose infection type matches. "all"
// (or the empty string) is the identity filter and returns the input
// unchanged. Row order is preserved.
func (a *Aggregator) FilterByType(records []domain.PatientRecord, infectionType string) []domain.PatientRecord {
	if infectionType == "" || infectionType == FilterAll {
		return records
	}
	out := make([]domain.PatientRecord, 0, len(records))
	for _, r := range records {
		if r.InfectionType == infectionType {
			out = append(out, r)
		}
	}
	return out
}

// CountByType counts rows per infection type. Totals always sum to
// the input row count.
func (a *Aggregator) CountByType(records []domain.PatientRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.InfectionType]++
	}
	return counts
}

// CountByDemographic counts rows per (sex, age bucket) pair. Totals
// always sum to the input row count.
func (a *Aggregator) CountByDemographic(records []domain.PatientRecord) map[DemographicKey]int {
	counts := make(map[DemographicKey]int)
	for _, r := range records {
		counts[DemographicKey{Sex: r.Sex, AgeBucket: AgeBucket(r.Age)}]++
	}
	return counts
}

// InfectedByDate sums confirmed infections per diagnosis date, feeding
// the infections-over-time line chart.
func (a *Aggregator) InfectedByDate(records []domain.PatientRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Infected {
			counts[dateKey(r)]++
		}
	}
	return counts
}

// CountByDateType counts rows per (date, infection type), feeding the
// stacked daily bar chart.
func (a *Aggregator) CountByDateType(records []domain.PatientRecord) map[DailyKey]int {
	counts := make(map[DailyKey]int)
	for _, r := range records {
		counts[DailyKey{Date: dateKey(r), InfectionType: r.InfectionType}]++
	}
	return counts
}

// HeatmapPoints snaps usable coordinates to the grid and counts rows
// per cell, normalizing intensity to [0,1] over the densest cell. Rows
// without usable coordinates are excluded from this view only; the
// exclusion is logged and returned, never fatal.
func (a *Aggregator) HeatmapPoints(ctx context.Context, records []domain.PatientRecord) ([]HeatmapPoint, int) {
	type cell struct {
		lat, lng float64
	}

	counts := make(map[cell]int)
	dropped := 0
	for _, r := range records {
		if !r.HasLocation() {
			dropped++
			continue
		}
		counts[cell{lat: snap(r.Latitude), lng: snap(r.Longitude)}]++
	}

	if dropped > 0 {
		a.logger.WarnContext(ctx, "rows excluded from geographic view",
			slog.Int("dropped", dropped),
			slog.Int("total", len(records)))
	}

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}

	points := make([]HeatmapPoint, 0, len(counts))
	for c, n := range counts {
		points = append(points, HeatmapPoint{
			Lat:       c.lat,
			Lng:       c.lng,
			Count:     n,
			Intensity: float64(n) / float64(maxCount),
		})
	}

	// Map iteration order is random; sort so identical inputs render
	// identical payloads.
	sort.Slice(points, func(i, j int) bool {
		if points[i].Lat != points[j].Lat {
			return points[i].Lat < points[j].Lat
		}
		return points[i].Lng < points[j].Lng
	})

	return points, dropped
}

// ViewCenter returns the mean usable coordinate, for centering the map.
// The fallback center of the pilot district is returned when no row has
// a usable location.
func (a *Aggregator) ViewCenter(records []domain.PatientRecord) (lat, lng float64) {
	var sumLat, sumLng float64
	n := 0
	for _, r := range records {
		if r.HasLocation() {
			sumLat += r.Latitude
			sumLng += r.Longitude
			n++
		}
	}
	if n == 0 {
		return -29.75, 26.0
	}
	return sumLat / float64(n), sumLng / float64(n)
}

// AgeBucket returns the 10-year bucket label for an age, e.g. "20-29".
// Ages of 80 and above share the "80+" bucket.
func AgeBucket(age int) string {
	if age < 0 {
		return "unknown"
	}
	if age >= 80 {
		return "80+"
	}
	low := (age / 10) * 10
	return fmt.Sprintf("%d-%d", low, low+9)
}

func snap(v float64) float64 {
	scale := math.Pow10(gridPrecision)
	return math.Round(v*scale) / scale
}

func dateKey(r domain.PatientRecord) string {
	if !r.DiagnosisDate.IsZero() {
		return r.DiagnosisDate.Format("2006-01-02")
	}
	// Zero-padded so lexicographic ordering matches day ordering.
	return fmt.Sprintf("day %03d", r.Day)
}
