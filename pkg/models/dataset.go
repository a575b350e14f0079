package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ColumnRole is the semantic role the column analyzer assigns to a column.
type ColumnRole string

const (
	RoleIdentifier  ColumnRole = "identifier"
	RoleDatetime    ColumnRole = "datetime"
	RoleNumeric     ColumnRole = "numeric"
	RoleCategorical ColumnRole = "categorical"
	RoleFreeText    ColumnRole = "free_text"
	RoleUnknown     ColumnRole = "unknown"
)

// ValidColumnRoles contains all valid role values.
var ValidColumnRoles = []ColumnRole{
	RoleIdentifier,
	RoleDatetime,
	RoleNumeric,
	RoleCategorical,
	RoleFreeText,
	RoleUnknown,
}

// IsValidColumnRole checks if the given role is valid.
func IsValidColumnRole(r ColumnRole) bool {
	for _, v := range ValidColumnRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Column is one named, ordered sequence of cells.
type Column struct {
	Name   string     `json:"name"`
	Role   ColumnRole `json:"role"`
	Values []Value    `json:"-"`
}

// Dataset is an immutable tabular value owned by one project.
// Filtering or joining produces a new Dataset; nothing edits one in place.
type Dataset struct {
	ID          string    `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	DisplayName string    `json:"display_name"`
	Columns     []Column  `json:"columns"`
	RowCount    int       `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`

	// IndexColumn names a system-assigned row index excluded from duplicate detection.
	IndexColumn string `json:"index_column,omitempty"`

	// Trace is set only on datasets produced by the join resolver.
	Trace *JoinTrace `json:"join_trace,omitempty"`
}

// ColumnNames returns the dataset's column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil.
func (d *Dataset) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// Row returns the cells of row i in column order.
func (d *Dataset) Row(i int) []Value {
	row := make([]Value, len(d.Columns))
	for c := range d.Columns {
		row[c] = d.Columns[c].Values[i]
	}
	return row
}

// Rows renders up to limit rows as ordered records. limit <= 0 means all rows.
func (d *Dataset) Rows(limit int) []Record {
	n := d.RowCount
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		rec := make(Record, len(d.Columns))
		for c := range d.Columns {
			rec[c] = Field{Name: d.Columns[c].Name, Value: d.Columns[c].Values[i]}
		}
		out[i] = rec
	}
	return out
}

// DatasetSummary is the listing form of a dataset.
type DatasetSummary struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	RowCount    int          `json:"row_count"`
	Columns     []string     `json:"columns"`
	Roles       []ColumnRole `json:"roles"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Summary returns the listing form of the dataset.
func (d *Dataset) Summary() DatasetSummary {
	roles := make([]ColumnRole, len(d.Columns))
	for i, c := range d.Columns {
		roles[i] = c.Role
	}
	return DatasetSummary{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		RowCount:    d.RowCount,
		Columns:     d.ColumnNames(),
		Roles:       roles,
		CreatedAt:   d.CreatedAt,
	}
}

// Field is one named cell of a record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered row. JSON objects decode into it with key order preserved.
type Record []Field

// Get returns the named field's value and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	var rec Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		rec = append(rec, Field{Name: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = rec
	return nil
}
