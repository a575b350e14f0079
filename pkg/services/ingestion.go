package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

// Ingestor turns uploaded rows into immutable datasets. Structural defects are
// rejected before any column is analyzed.
type Ingestor struct {
	analyzer *ColumnAnalyzer
	now      func() time.Time
	newID    func() string
}

// NewIngestor creates an ingestor that classifies columns with analyzer.
func NewIngestor(analyzer *ColumnAnalyzer) *Ingestor {
	return &Ingestor{
		analyzer: analyzer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Ingest builds a dataset from ordered records. Every record must carry exactly the
// column names of the first record; field order within later records may differ.
func (in *Ingestor) Ingest(displayName string, records []models.Record) (*models.Dataset, error) {
	var names []string
	if len(records) > 0 {
		seen := make(map[string]bool, len(records[0]))
		for _, f := range records[0] {
			if seen[f.Name] {
				return nil, &apperrors.MalformedTableError{Row: 0, Reason: fmt.Sprintf("duplicate column %q", f.Name)}
			}
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}

	columns := make([]models.Column, len(names))
	for i, name := range names {
		columns[i] = models.Column{Name: name, Values: make([]models.Value, 0, len(records))}
	}

	for rowIdx, rec := range records {
		if len(rec) != len(names) {
			return nil, &apperrors.MalformedTableError{
				Row:    rowIdx,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(names), len(rec)),
			}
		}
		for i, name := range names {
			v, ok := rec.Get(name)
			if !ok {
				return nil, &apperrors.MalformedTableError{Row: rowIdx, Reason: fmt.Sprintf("missing column %q", name)}
			}
			columns[i].Values = append(columns[i].Values, v)
		}
	}

	return in.build(displayName, columns, len(records)), nil
}

// IngestCSV parses a CSV document with a header row. UTF-8 and UTF-16 byte order
// marks are honoured. Empty cells become null; columns whose non-empty cells all
// parse as numbers (or all as true/false) are converted.
func (in *Ingestor) IngestCSV(displayName string, r io.Reader) (*models.Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &apperrors.MalformedTableError{Row: -1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, &apperrors.MalformedTableError{Row: -1, Reason: fmt.Sprintf("read header: %v", err)}
	}
	names := normalizeHeader(header)

	raw := make([][]string, len(names))
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &apperrors.MalformedTableError{Row: rows, Reason: fmt.Sprintf("csv read: %v", err)}
		}
		if len(rec) != len(names) {
			return nil, &apperrors.MalformedTableError{
				Row:    rows,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(names), len(rec)),
			}
		}
		for i, cell := range rec {
			raw[i] = append(raw[i], cell)
		}
		rows++
	}

	columns := make([]models.Column, len(names))
	for i, name := range names {
		columns[i] = models.Column{Name: name, Values: coerceColumn(raw[i])}
	}
	return in.build(displayName, columns, rows), nil
}

func (in *Ingestor) build(displayName string, columns []models.Column, rows int) *models.Dataset {
	for i := range columns {
		columns[i].Role = in.analyzer.Analyze(columns[i].Name, columns[i].Values).Role
	}
	return &models.Dataset{
		ID:          in.newID(),
		DisplayName: displayName,
		Columns:     columns,
		RowCount:    rows,
		CreatedAt:   in.now(),
	}
}

// normalizeHeader trims names, names blank headers by position and disambiguates
// repeats with a numeric suffix ("a", "a.1", "a.2").
func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		name := h
		for n := 1; taken[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// coerceColumn converts raw CSV cells into typed values for the whole column at once.
func coerceColumn(cells []string) []models.Value {
	allNumbers, allBools, seen := true, true, false
	for _, c := range cells {
		s := strings.TrimSpace(c)
		if s == "" {
			continue
		}
		seen = true
		if allNumbers {
			if _, ok := ParseNumber(models.StringValue(s)); !ok {
				allNumbers = false
			}
		}
		if allBools {
			if !strings.EqualFold(s, "true") && !strings.EqualFold(s, "false") {
				allBools = false
			}
		}
	}

	out := make([]models.Value, len(cells))
	for i, c := range cells {
		s := strings.TrimSpace(c)
		switch {
		case s == "":
			out[i] = models.Null
		case seen && allNumbers:
			f, _ := ParseNumber(models.StringValue(s))
			out[i] = models.NumberValue(f)
		case seen && allBools:
			out[i] = models.BoolValue(strings.EqualFold(s, "true"))
		default:
			out[i] = models.StringValue(c)
		}
	}
	return out
}
