package repositories

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// storedDataset is the serialized column payload of a dataset.
// Cells are kept as strings with a parallel kind string so every value round-trips exactly.
type storedDataset struct {
	RowCount    int            `json:"row_count"`
	IndexColumn string         `json:"index_column,omitempty"`
	Columns     []storedColumn `json:"columns"`
}

type storedColumn struct {
	Name  string            `json:"name"`
	Role  models.ColumnRole `json:"role"`
	Kinds string            `json:"kinds"`
	Cells []string          `json:"cells"`
}

func kindCode(k models.ValueKind) byte {
	return byte('0' + int(k))
}

func encodeCell(v models.Value) string {
	switch v.Kind {
	case models.KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case models.KindTime:
		return v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

func decodeCell(kind byte, cell string) (models.Value, error) {
	switch models.ValueKind(kind - '0') {
	case models.KindNull:
		return models.Null, nil
	case models.KindString:
		return models.StringValue(cell), nil
	case models.KindNumber:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return models.Null, err
		}
		return models.NumberValue(f), nil
	case models.KindBool:
		return models.BoolValue(cell == "true"), nil
	case models.KindTime:
		t, err := time.Parse(time.RFC3339Nano, cell)
		if err != nil {
			return models.Null, err
		}
		return models.TimeValue(t), nil
	}
	return models.Null, fmt.Errorf("unknown value kind %q", kind)
}

// encodeDataset serializes the column payload of ds.
func encodeDataset(ds *models.Dataset) ([]byte, error) {
	stored := storedDataset{
		RowCount:    ds.RowCount,
		IndexColumn: ds.IndexColumn,
		Columns:     make([]storedColumn, len(ds.Columns)),
	}
	for i, c := range ds.Columns {
		kinds := make([]byte, len(c.Values))
		cells := make([]string, len(c.Values))
		for j, v := range c.Values {
			kinds[j] = kindCode(v.Kind)
			cells[j] = encodeCell(v)
		}
		stored.Columns[i] = storedColumn{Name: c.Name, Role: c.Role, Kinds: string(kinds), Cells: cells}
	}
	return json.Marshal(stored)
}

// decodeDataset restores the column payload into ds.
func decodeDataset(data []byte, ds *models.Dataset) error {
	var stored storedDataset
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal dataset payload: %w", err)
	}

	ds.RowCount = stored.RowCount
	ds.IndexColumn = stored.IndexColumn
	ds.Columns = make([]models.Column, len(stored.Columns))
	for i, sc := range stored.Columns {
		if len(sc.Kinds) != len(sc.Cells) {
			return fmt.Errorf("column %q: %d kinds for %d cells", sc.Name, len(sc.Kinds), len(sc.Cells))
		}
		values := make([]models.Value, len(sc.Cells))
		for j, cell := range sc.Cells {
			v, err := decodeCell(sc.Kinds[j], cell)
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", sc.Name, j, err)
			}
			values[j] = v
		}
		ds.Columns[i] = models.Column{Name: sc.Name, Role: sc.Role, Values: values}
	}
	return nil
}
