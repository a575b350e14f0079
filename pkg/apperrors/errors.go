package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrProjectNotFound      = errors.New("project not found")
	ErrMalformedTable       = errors.New("malformed table")
	ErrColumnNotFound       = errors.New("column not found")
	ErrDisconnectedDatasets = errors.New("disconnected datasets")
	ErrDatasetNotFound      = errors.New("dataset not found")
	ErrInvalidRelationship  = errors.New("invalid relationship")
	ErrLLMUnavailable       = errors.New("llm provider not configured")
	ErrInvalidInput         = errors.New("invalid input")
)

// MalformedTableError reports a structural defect found while ingesting rows.
// Row is the zero-based record index, or -1 when the defect is not row specific.
type MalformedTableError struct {
	Row    int
	Reason string
}

func (e *MalformedTableError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("malformed table: %s", e.Reason)
	}
	return fmt.Sprintf("malformed table: row %d: %s", e.Row, e.Reason)
}

func (e *MalformedTableError) Unwrap() error { return ErrMalformedTable }

// ColumnNotFoundError is returned when a relationship names a column the dataset lacks.
type ColumnNotFoundError struct {
	DatasetID string
	Column    string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in dataset %s", e.Column, e.DatasetID)
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }

// DisconnectedDatasetsError lists the required datasets that no relationship path reaches.
type DisconnectedDatasetsError struct {
	Unreachable []string
}

func (e *DisconnectedDatasetsError) Error() string {
	return fmt.Sprintf("disconnected datasets: no relationship path to [%s]", strings.Join(e.Unreachable, ", "))
}

func (e *DisconnectedDatasetsError) Unwrap() error { return ErrDisconnectedDatasets }

// DatasetNotFoundError is returned for stale or unknown dataset ids.
type DatasetNotFoundError struct {
	ID string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %s not found", e.ID)
}

func (e *DatasetNotFoundError) Unwrap() error { return ErrDatasetNotFound }
