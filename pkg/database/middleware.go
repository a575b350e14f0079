package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WithTenantContext creates middleware that sets up a tenant-scoped DB connection
// for routes carrying a {pid} path segment. Routes without one pass through unchanged.
// The connection is automatically cleaned up after the handler returns.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			pid := r.PathValue("pid")
			if pid == "" {
				next(w, r)
				return
			}

			projectID, err := uuid.Parse(pid)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
				return
			}

			scope, err := db.WithTenant(r.Context(), projectID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			ctx := SetTenantScope(r.Context(), scope)
			next(w, r.WithContext(ctx))
		}
	}
}

// PassThrough is the tenant middleware for stores without row level security.
func PassThrough(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
