package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseProjectID extracts and validates the project ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: pid
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "pid", "invalid_project_id", "Invalid project ID format", logger)
}

// ParseDatasetID extracts the dataset ID from the request path.
// Dataset ids are opaque strings; only an empty value is rejected.
// Expects path parameter: did
func ParseDatasetID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	id := strings.TrimSpace(r.PathValue("did"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_dataset_id", "Dataset ID is required", logger)
		return "", false
	}
	return id, true
}

// ParseProjectAndDatasetIDs extracts and validates both project and dataset IDs.
// Expects path parameters: pid, did
func ParseProjectAndDatasetIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, string, bool) {
	projectID, ok := ParseProjectID(w, r, logger)
	if !ok {
		return uuid.Nil, "", false
	}

	datasetID, ok := ParseDatasetID(w, r, logger)
	if !ok {
		return uuid.Nil, "", false
	}

	return projectID, datasetID, true
}

// parseOptionalInt reads an integer query parameter. A missing value returns
// defaultVal; a malformed one writes a 400.
func parseOptionalInt(w http.ResponseWriter, r *http.Request, name string, defaultVal int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameter", "Query parameter "+name+" must be a non-negative integer", logger)
		return 0, false
	}
	return n, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}
