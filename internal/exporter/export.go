package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"epipulse/pkg/contracts/domain"
)

// FormatCSV and FormatXLSX name the supported export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	sheetName = "Patients"
)

// Header is the canonical column layout. Exported files decode back
// through the upload path unchanged.
var Header = []string{
	"Patient ID",
	"Day",
	"Diagnosis Date",
	"Age",
	"Sex",
	"Latitude",
	"Longitude",
	"Infected",
	"Type of Infection",
}

// Options configures an export.
type Options struct {
	Format string
	// BOMPrefix adds a UTF-8 BOM so Excel opens the CSV correctly.
	BOMPrefix bool
}

// Writer streams datasets to CSV or Excel.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates an export writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "exporter"))}
}

// ContentType returns the MIME type for a format, or "" if the format
// is unknown.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return ""
	}
}

// Write streams the dataset's records to w in the requested format.
func (e *Writer) Write(ctx context.Context, w io.Writer, dataset *domain.Dataset, opts Options) error {
	e.logger.InfoContext(ctx, "exporting dataset",
		slog.String("dataset_id", dataset.ID),
		slog.String("format", opts.Format),
		slog.Int("records", len(dataset.Records)))

	switch opts.Format {
	case FormatCSV:
		return e.writeCSV(w, dataset.Records, opts.BOMPrefix)
	case FormatXLSX:
		return e.writeXLSX(w, dataset.Records)
	default:
		return fmt.Errorf("unsupported export format %q", opts.Format)
	}
}

func (e *Writer) writeCSV(w io.Writer, records []domain.PatientRecord, bom bool) error {
	if bom {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		if err := cw.Write(row(&records[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Writer) writeXLSX(w io.Writer, records []domain.PatientRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range records {
		cells := row(&records[i])
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func row(r *domain.PatientRecord) []string {
	date := ""
	if !r.DiagnosisDate.IsZero() {
		date = r.DiagnosisDate.Format("2006-01-02")
	}
	age := ""
	if r.HasAge() {
		age = strconv.Itoa(r.Age)
	}
	lat, lng := "", ""
	if !math.IsNaN(r.Latitude) {
		lat = strconv.FormatFloat(r.Latitude, 'f', 6, 64)
	}
	if !math.IsNaN(r.Longitude) {
		lng = strconv.FormatFloat(r.Longitude, 'f', 6, 64)
	}

	return []string{
		strconv.Itoa(r.ID),
		strconv.Itoa(r.Day),
		date,
		age,
		string(r.Sex),
		lat,
		lng,
		strconv.FormatBool(r.Infected),
		r.InfectionType,
	}
}
