package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// TenantMiddleware is a function that wraps a handler with tenant context.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ProjectResponse is the API form of a project.
type ProjectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProjectResponse(p *models.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Context:   p.Context,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// ProjectContextRequest is the body of PUT /api/projects/{pid}/context.
type ProjectContextRequest struct {
	Content string `json:"content"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("GET /api/projects/{pid}", tenantMiddleware(h.Get))
	mux.HandleFunc("DELETE /api/projects/{pid}", tenantMiddleware(h.Delete))
	mux.HandleFunc("GET /api/projects/{pid}/context", tenantMiddleware(h.GetContext))
	mux.HandleFunc("PUT /api/projects/{pid}/context", tenantMiddleware(h.UpdateContext))
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	project, err := h.projectService.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err, "Failed to create project", h.logger)
		return
	}

	writeSuccess(w, http.StatusCreated, toProjectResponse(project), h.logger)
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to list projects", h.logger)
		return
	}

	out := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		out[i] = toProjectResponse(p)
	}
	writeSuccess(w, http.StatusOK, out, h.logger)
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "Failed to get project", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, toProjectResponse(project), h.logger)
}

// Delete handles DELETE /api/projects/{pid}
// Removes the project with its datasets, relationships and conversation.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.Delete(r.Context(), projectID); err != nil {
		writeServiceError(w, err, "Failed to delete project", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetContext handles GET /api/projects/{pid}/context
func (h *ProjectsHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	content, err := h.projectService.GetContext(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, err, "Failed to get project context", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, ProjectContextRequest{Content: content}, h.logger)
}

// UpdateContext handles PUT /api/projects/{pid}/context
func (h *ProjectsHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ProjectContextRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	project, err := h.projectService.UpdateContext(r.Context(), projectID, req.Content)
	if err != nil {
		writeServiceError(w, err, "Failed to update project context", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, toProjectResponse(project), h.logger)
}
