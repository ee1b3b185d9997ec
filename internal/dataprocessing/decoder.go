package dataprocessing

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "epipulse/internal/errors"
	"epipulse/pkg/contracts/domain"
)

// Column roles the decoder can fill from an uploaded table.
const (
	colID        = "id"
	colAge       = "age"
	colSex       = "sex"
	colLatitude  = "latitude"
	colLongitude = "longitude"
	colType      = "infection_type"
	colDate      = "diagnosis_date"
	colDay       = "day"
	colInfected  = "infected"
)

// headerAliases maps normalized header names to column roles. Clinic
// teams export with a variety of spreadsheet templates, so matching is
// best effort over the names seen in the field.
var headerAliases = map[string]string{
	"id":              colID,
	"patientid":       colID,
	"age":             colAge,
	"sex":             colSex,
	"gender":          colSex,
	"latitude":        colLatitude,
	"lat":             colLatitude,
	"longitude":       colLongitude,
	"lon":             colLongitude,
	"lng":             colLongitude,
	"infectiontype":   colType,
	"typeofinfection": colType,
	"type":            colType,
	"diagnosisdate":   colDate,
	"date":            colDate,
	"day":             colDay,
	"infected":        colInfected,
	"confirmed":       colInfected,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

// Decoder turns uploaded clinic files into patient records.
type Decoder struct {
	logger     *slog.Logger
	maxRecords int
}

// NewDecoder creates a decoder that refuses tables above maxRecords rows.
func NewDecoder(logger *slog.Logger, maxRecords int) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRecords <= 0 {
		maxRecords = 500000
	}
	return &Decoder{
		logger:     logger.With(slog.String("component", "dataprocessing.decoder")),
		maxRecords: maxRecords,
	}
}

// Decode reads a CSV or XLSX upload into patient records. The returned
// dropped count is the number of rows discarded for lacking a parseable
// diagnosis date or day index. Cell-level defects (bad ages, bad
// coordinates) become missing values for the cleaner and the geographic
// exclusion to handle; they never fail the decode.
func (d *Decoder) Decode(ctx context.Context, filename string, r io.Reader) ([]domain.PatientRecord, int, error) {
	var rows [][]string
	var err error

	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		rows, err = readXLSX(r)
	} else {
		rows, err = readCSV(r)
	}
	if err != nil {
		return nil, 0, apperrors.NewParsingError("uploaded file is empty or not a readable table", err)
	}
	if len(rows) < 2 {
		return nil, 0, apperrors.NewParsingError("uploaded file has no data rows", nil)
	}
	if len(rows)-1 > d.maxRecords {
		return nil, 0, apperrors.NewInvalidParameterError("file",
			"uploaded table exceeds the maximum row count")
	}

	columns := mapHeader(rows[0])
	if _, ok := columns[colLatitude]; !ok {
		return nil, 0, apperrors.NewInvalidParameterError("file", "missing required column: Latitude")
	}
	if _, ok := columns[colLongitude]; !ok {
		return nil, 0, apperrors.NewInvalidParameterError("file", "missing required column: Longitude")
	}
	if _, okDate := columns[colDate]; !okDate {
		if _, okDay := columns[colDay]; !okDay {
			return nil, 0, apperrors.NewInvalidParameterError("file", "missing required column: Diagnosis Date")
		}
	}

	records, dropped := d.decodeRows(ctx, columns, rows[1:])

	d.logger.InfoContext(ctx, "decoded uploaded table",
		slog.String("filename", filename),
		slog.Int("records", len(records)),
		slog.Int("dropped", dropped))

	return records, dropped, nil
}

func (d *Decoder) decodeRows(ctx context.Context, columns map[string]int, rows [][]string) ([]domain.PatientRecord, int) {
	records := make([]domain.PatientRecord, 0, len(rows))
	dropped := 0

	for i, row := range rows {
		if blankRow(row) {
			continue
		}

		rec := domain.PatientRecord{
			Age:       domain.AgeMissing,
			Latitude:  math.NaN(),
			Longitude: math.NaN(),
			// An uploaded row is a diagnosed case unless the table
			// says otherwise.
			Infected: true,
		}

		date, day, ok := parseWhen(cellAt(row, columns, colDate), cellAt(row, columns, colDay))
		if !ok {
			dropped++
			d.logger.DebugContext(ctx, "dropping row without usable diagnosis date",
				slog.Int("row", i+2))
			continue
		}
		rec.DiagnosisDate = date
		rec.Day = day

		if v, err := strconv.Atoi(strings.TrimSpace(cellAt(row, columns, colID))); err == nil {
			rec.ID = v
		} else {
			rec.ID = len(records) + 1
		}
		if v, err := strconv.Atoi(strings.TrimSpace(cellAt(row, columns, colAge))); err == nil && v >= 0 {
			rec.Age = v
		}
		rec.Sex = parseSex(cellAt(row, columns, colSex))
		rec.InfectionType = strings.TrimSpace(cellAt(row, columns, colType))
		if v, err := strconv.ParseFloat(strings.TrimSpace(cellAt(row, columns, colLatitude)), 64); err == nil {
			rec.Latitude = v
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(cellAt(row, columns, colLongitude)), 64); err == nil {
			rec.Longitude = v
		}
		if raw := strings.TrimSpace(cellAt(row, columns, colInfected)); raw != "" {
			rec.Infected = parseBool(raw)
		}

		records = append(records, rec)
	}

	deriveDays(records)
	return records, dropped
}

// deriveDays fills the integer day index from diagnosis dates, counting
// from the earliest date in the table. Rows that already carried an
// explicit day index keep it.
func deriveDays(records []domain.PatientRecord) {
	var earliest time.Time
	for _, r := range records {
		if !r.DiagnosisDate.IsZero() && (earliest.IsZero() || r.DiagnosisDate.Before(earliest)) {
			earliest = r.DiagnosisDate
		}
	}
	if earliest.IsZero() {
		return
	}
	for i := range records {
		if !records[i].DiagnosisDate.IsZero() && records[i].Day == 0 {
			records[i].Day = int(records[i].DiagnosisDate.Sub(earliest).Hours() / 24)
		}
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return f.GetRows(sheets[0])
}

// mapHeader resolves each header cell to a column role. The first
// header claiming a role wins.
func mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for i, cell := range header {
		normalized := normalizeHeader(cell)
		role, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, taken := columns[role]; !taken {
			columns[role] = i
		}
	}
	return columns
}

func normalizeHeader(cell string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(cell)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cellAt(row []string, columns map[string]int, role string) string {
	idx, ok := columns[role]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseWhen resolves the diagnosis date cell, falling back to an
// integer day index when no date column parses.
func parseWhen(dateCell, dayCell string) (time.Time, int, bool) {
	raw := strings.TrimSpace(dateCell)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, 0, true
		}
	}
	if day, err := strconv.Atoi(strings.TrimSpace(dayCell)); err == nil && day >= 0 {
		return time.Time{}, day, true
	}
	return time.Time{}, 0, false
}

func parseSex(raw string) domain.Sex {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "male":
		return domain.SexMale
	case "f", "female":
		return domain.SexFemale
	case "unknown":
		return domain.SexUnknown
	default:
		// Missing or unrecognized; the cleaner fills it.
		return domain.Sex("")
	}
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
