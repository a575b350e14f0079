package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// maxUploadBytes bounds a single CSV upload.
const maxUploadBytes = 64 << 20

// IngestRecordsRequest is the body of POST /api/projects/{pid}/datasets/records.
type IngestRecordsRequest struct {
	Name string          `json:"name"`
	Rows []models.Record `json:"rows"`
}

// DatasetsHandler handles dataset ingestion, listing, preview and profiling.
type DatasetsHandler struct {
	datasetService services.DatasetService
	logger         *zap.Logger
}

// NewDatasetsHandler creates a new datasets handler.
func NewDatasetsHandler(datasetService services.DatasetService, logger *zap.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		datasetService: datasetService,
		logger:         logger,
	}
}

// RegisterRoutes registers the datasets handler's routes on the given mux.
func (h *DatasetsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/datasets"
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Upload))
	mux.HandleFunc("POST "+base+"/records", tenantMiddleware(h.IngestRecords))
	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("GET "+base+"/{did}", tenantMiddleware(h.Get))
	mux.HandleFunc("PUT "+base+"/{did}", tenantMiddleware(h.Replace))
	mux.HandleFunc("DELETE "+base+"/{did}", tenantMiddleware(h.Remove))
	mux.HandleFunc("GET "+base+"/{did}/preview", tenantMiddleware(h.Preview))
	mux.HandleFunc("GET "+base+"/{did}/profile", tenantMiddleware(h.Profile))
}

// readUpload returns the name and bytes of the multipart "file" field.
func (h *DatasetsHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "Upload exceeds the size limit", h.logger)
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form with a file field", h.logger)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "Form field 'file' is required", h.logger)
		return "", nil, false
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "unsupported_file_type", "Only CSV files are supported", h.logger)
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read uploaded file", h.logger)
		return "", nil, false
	}
	return header.Filename, data, true
}

// Upload handles POST /api/projects/{pid}/datasets
// Ingests a CSV file, profiles it and runs relationship detection.
func (h *DatasetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.datasetService.Upload(r.Context(), projectID, fileName, data)
	if err != nil {
		writeServiceError(w, err, "Failed to ingest dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusCreated, result, h.logger)
}

// IngestRecords handles POST /api/projects/{pid}/datasets/records
func (h *DatasetsHandler) IngestRecords(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req IngestRecordsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required", h.logger)
		return
	}

	result, err := h.datasetService.IngestRecords(r.Context(), projectID, req.Name, req.Rows)
	if err != nil {
		writeServiceError(w, err, "Failed to ingest dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusCreated, result, h.logger)
}

// List handles GET /api/projects/{pid}/datasets
func (h *DatasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	datasets, err := h.datasetService.List(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "Failed to list datasets", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, datasets, h.logger)
}

// Get handles GET /api/projects/{pid}/datasets/{did}
// Returns dataset metadata; cells are served by the preview endpoint.
func (h *DatasetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, datasetID, ok := ParseProjectAndDatasetIDs(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.datasetService.Get(r.Context(), projectID, datasetID)
	if err != nil {
		writeServiceError(w, err, "Failed to get dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, ds.Summary(), h.logger)
}

// Replace handles PUT /api/projects/{pid}/datasets/{did}
// The new version gets a fresh id; the response names the replaced one.
func (h *DatasetsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	projectID, datasetID, ok := ParseProjectAndDatasetIDs(w, r, h.logger)
	if !ok {
		return
	}
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.datasetService.Replace(r.Context(), projectID, datasetID, fileName, data)
	if err != nil {
		writeServiceError(w, err, "Failed to replace dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, result, h.logger)
}

// Remove handles DELETE /api/projects/{pid}/datasets/{did}
func (h *DatasetsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	projectID, datasetID, ok := ParseProjectAndDatasetIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasetService.Remove(r.Context(), projectID, datasetID); err != nil {
		writeServiceError(w, err, "Failed to remove dataset", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Preview handles GET /api/projects/{pid}/datasets/{did}/preview?rows=N
func (h *DatasetsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	projectID, datasetID, ok := ParseProjectAndDatasetIDs(w, r, h.logger)
	if !ok {
		return
	}
	rows, ok := parseOptionalInt(w, r, "rows", services.DefaultPreviewRows, h.logger)
	if !ok {
		return
	}

	preview, err := h.datasetService.Preview(r.Context(), projectID, datasetID, rows)
	if err != nil {
		writeServiceError(w, err, "Failed to preview dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, preview, h.logger)
}

// Profile handles GET /api/projects/{pid}/datasets/{did}/profile
func (h *DatasetsHandler) Profile(w http.ResponseWriter, r *http.Request) {
	projectID, datasetID, ok := ParseProjectAndDatasetIDs(w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.datasetService.Profile(r.Context(), projectID, datasetID)
	if err != nil {
		writeServiceError(w, err, "Failed to profile dataset", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, profile, h.logger)
}
