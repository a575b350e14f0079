package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// DetectRelationshipsRequest is the body of POST /api/projects/{pid}/relationships/detect.
type DetectRelationshipsRequest struct {
	SourceDatasetID string `json:"source_dataset_id"`
	TargetDatasetID string `json:"target_dataset_id"`
}

// RelationshipsResponse lists relationship candidates.
type RelationshipsResponse struct {
	Relationships []models.RelationshipCandidate `json:"relationships"`
	Total         int                            `json:"total"`
}

// RelationshipsHandler handles relationship listing, detection and declaration.
type RelationshipsHandler struct {
	datasetService services.DatasetService
	logger         *zap.Logger
}

// NewRelationshipsHandler creates a new relationships handler.
func NewRelationshipsHandler(datasetService services.DatasetService, logger *zap.Logger) *RelationshipsHandler {
	return &RelationshipsHandler{
		datasetService: datasetService,
		logger:         logger,
	}
}

// RegisterRoutes registers the relationships handler's routes on the given mux.
func (h *RelationshipsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/projects/{pid}/relationships", tenantMiddleware(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/relationships", tenantMiddleware(h.Declare))
	mux.HandleFunc("POST /api/projects/{pid}/relationships/detect", tenantMiddleware(h.Detect))
}

// List handles GET /api/projects/{pid}/relationships
// Returns user declarations followed by detected candidates.
func (h *RelationshipsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	rels, err := h.datasetService.ListRelationships(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "Failed to list relationships", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, RelationshipsResponse{Relationships: rels, Total: len(rels)}, h.logger)
}

// Detect handles POST /api/projects/{pid}/relationships/detect
func (h *RelationshipsHandler) Detect(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req DetectRelationshipsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.SourceDatasetID == "" || req.TargetDatasetID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "source_dataset_id and target_dataset_id are required", h.logger)
		return
	}

	candidates, err := h.datasetService.DetectRelationships(r.Context(), projectID, req.SourceDatasetID, req.TargetDatasetID)
	if err != nil {
		writeServiceError(w, err, "Failed to detect relationships", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, RelationshipsResponse{Relationships: candidates, Total: len(candidates)}, h.logger)
}

// Declare handles POST /api/projects/{pid}/relationships
// A declaration naming a missing column is rejected with column_not_found.
func (h *RelationshipsHandler) Declare(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.DeclareRelationshipRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.SourceDatasetID == "" || req.SourceColumn == "" || req.TargetDatasetID == "" || req.TargetColumn == "" {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"source_dataset_id, source_column, target_dataset_id and target_column are required", h.logger)
		return
	}

	candidate, err := h.datasetService.DeclareRelationship(r.Context(), projectID, req)
	if err != nil {
		writeServiceError(w, err, "Failed to declare relationship", h.logger)
		return
	}

	writeSuccess(w, http.StatusCreated, candidate, h.logger)
}
