// Package storage archives raw uploaded files in S3-compatible object storage.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Archive keeps the raw bytes of uploaded files. Archiving is best effort:
// callers log failures and carry on.
type Archive interface {
	// Put stores body and returns the object key it was written to.
	Put(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, body []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey returns the key a raw upload is stored under:
// projects/{project_id}/files/{dataset_id}/{file_name}.
func ObjectKey(projectID uuid.UUID, datasetID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("projects", projectID.String(), "files", datasetID, name)
}

type noopArchive struct{}

// NewNoopArchive returns an Archive that discards everything.
func NewNoopArchive() Archive {
	return noopArchive{}
}

func (noopArchive) Put(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, body []byte) (string, error) {
	return ObjectKey(projectID, datasetID, fileName), nil
}

func (noopArchive) Delete(ctx context.Context, key string) error {
	return nil
}
