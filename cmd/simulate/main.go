// Command simulate writes a synthetic clinic dataset to a CSV or Excel
// file, so field teams have realistic sample files to round-trip
// through the dashboard's upload path.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"epipulse/internal/exporter"
	"epipulse/internal/simulation"
	"epipulse/pkg/contracts/domain"
)

func main() {
	var (
		out           = flag.String("out", "simulated.csv", "output path (.csv or .xlsx)")
		caseCount     = flag.Int("cases", 200, "number of simulated cases")
		infectionRate = flag.Float64("rate", 0.1, "infection rate in [0,1]")
		dayCount      = flag.Int("days", 30, "days to simulate")
		seed          = flag.Int64("seed", 0, "random seed (0 uses the default)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	records, err := simulation.NewGenerator(logger).Generate(ctx, simulation.Params{
		CaseCount:     *caseCount,
		InfectionRate: *infectionRate,
		DayCount:      *dayCount,
		Seed:          *seed,
	})
	if err != nil {
		logger.Error("generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	format := exporter.FormatCSV
	if strings.EqualFold(filepath.Ext(*out), ".xlsx") {
		format = exporter.FormatXLSX
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Error("create failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer f.Close()

	dataset := &domain.Dataset{
		ID:        "local",
		Source:    domain.SourceSimulated,
		Name:      filepath.Base(*out),
		CreatedAt: time.Now().UTC(),
		Records:   records,
	}
	if err := exporter.NewWriter(logger).Write(ctx, f, dataset, exporter.Options{Format: format}); err != nil {
		logger.Error("write failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("dataset written",
		slog.String("path", *out),
		slog.String("format", format),
		slog.Int("records", len(records)))
}
