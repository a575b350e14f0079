package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// defaultJoinPreviewRows is used when a join request sets no preview_rows.
const defaultJoinPreviewRows = 100

// ResolveJoinRequest is the body of POST /api/projects/{pid}/joins.
type ResolveJoinRequest struct {
	DatasetIDs  []string `json:"dataset_ids"`
	PreviewRows int      `json:"preview_rows"`
}

// JoinResponse describes a joined dataset. The dataset itself is not stored.
type JoinResponse struct {
	RowCount  int               `json:"row_count"`
	Columns   []string          `json:"columns"`
	Trace     *models.JoinTrace `json:"join_trace"`
	WeakMatch bool              `json:"weak_match"`
	Rows      []models.Record   `json:"rows"`
}

// JoinsHandler handles multi-dataset join resolution.
type JoinsHandler struct {
	datasetService services.DatasetService
	logger         *zap.Logger
}

// NewJoinsHandler creates a new joins handler.
func NewJoinsHandler(datasetService services.DatasetService, logger *zap.Logger) *JoinsHandler {
	return &JoinsHandler{
		datasetService: datasetService,
		logger:         logger,
	}
}

// RegisterRoutes registers the joins handler's routes on the given mux.
func (h *JoinsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects/{pid}/joins", tenantMiddleware(h.Resolve))
}

// Resolve handles POST /api/projects/{pid}/joins
// Disconnected datasets are reported with 422 and the unreachable ids.
func (h *JoinsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ResolveJoinRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if len(req.DatasetIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "dataset_ids is required", h.logger)
		return
	}

	limit := req.PreviewRows
	if limit <= 0 {
		limit = defaultJoinPreviewRows
	}
	if limit > services.MaxPreviewRows {
		limit = services.MaxPreviewRows
	}

	joined, err := h.datasetService.ResolveJoin(r.Context(), projectID, req.DatasetIDs)
	if err != nil {
		writeServiceError(w, err, "Failed to resolve join", h.logger)
		return
	}

	resp := JoinResponse{
		RowCount: joined.RowCount,
		Columns:  joined.ColumnNames(),
		Trace:    joined.Trace,
		Rows:     joined.Rows(limit),
	}
	if joined.Trace != nil {
		resp.WeakMatch = joined.Trace.HasWeakMatch()
	}

	writeSuccess(w, http.StatusOK, resp, h.logger)
}
