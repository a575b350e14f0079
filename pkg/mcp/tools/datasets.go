package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

// defaultJoinPreviewRows is used when resolve_join is called without preview_rows.
const defaultJoinPreviewRows = 20

// ToolDeps contains the services the engine tools call into.
type ToolDeps struct {
	Datasets services.DatasetService
	Logger   *zap.Logger
}

// RegisterEngineTools adds the dataset, relationship and join tools to the server.
func RegisterEngineTools(s *server.MCPServer, deps *ToolDeps) {
	registerListDatasetsTool(s, deps)
	registerProfileDatasetTool(s, deps)
	registerListRelationshipsTool(s, deps)
	registerDetectRelationshipsTool(s, deps)
	registerDeclareRelationshipTool(s, deps)
	registerResolveJoinTool(s, deps)
}

// handleEngineError turns recoverable engine errors into error results and
// logs everything else before returning it as a Go error.
func handleEngineError(deps *ToolDeps, tool string, err error) (*mcp.CallToolResult, error) {
	if result := engineErrorResult(err); result != nil {
		return result, nil
	}
	deps.Logger.Error("Tool failed", zap.String("tool", tool), zap.Error(err))
	return nil, fmt.Errorf("%s failed: %w", tool, err)
}

func registerListDatasetsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_datasets",
		mcp.WithDescription(
			"List the datasets uploaded to a project. Returns id, display name, row count, "+
				"column names and the role inferred for each column.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}

		datasets, err := deps.Datasets.List(ctx, projectID)
		if err != nil {
			return handleEngineError(deps, "list_datasets", err)
		}

		return jsonResult(struct {
			Datasets []models.DatasetSummary `json:"datasets"`
			Count    int                     `json:"count"`
		}{Datasets: datasets, Count: len(datasets)})
	})
}

func registerProfileDatasetTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"profile_dataset",
		mcp.WithDescription(
			"Return the profile of one dataset: per-column role and summary statistics, "+
				"quality score and assessment, duplicate rows, correlations, issues and hints "+
				"such as potential identifiers and foreign keys.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithString(
			"dataset_id",
			mcp.Required(),
			mcp.Description("Dataset id as returned by list_datasets"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}
		datasetID, errResult := requireTrimmed(req, "dataset_id")
		if errResult != nil {
			return errResult, nil
		}

		profile, err := deps.Datasets.Profile(ctx, projectID, datasetID)
		if err != nil {
			return handleEngineError(deps, "profile_dataset", err)
		}
		return jsonResult(profile)
	})
}

func registerListRelationshipsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_relationships",
		mcp.WithDescription(
			"List the project's relationship candidates, user declarations first, "+
				"then detected candidates by descending confidence.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}

		rels, err := deps.Datasets.ListRelationships(ctx, projectID)
		if err != nil {
			return handleEngineError(deps, "list_relationships", err)
		}
		return jsonResult(relationshipsResponse{Relationships: rels, Count: len(rels)})
	})
}

type relationshipsResponse struct {
	Relationships []models.RelationshipCandidate `json:"relationships"`
	Count         int                            `json:"count"`
}

func registerDetectRelationshipsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"detect_relationships",
		mcp.WithDescription(
			"Detect joinable column pairs between two datasets by comparing names and values. "+
				"The result replaces earlier detected candidates for the pair; user declarations are kept.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithString(
			"source_dataset_id",
			mcp.Required(),
			mcp.Description("Dataset on the source side"),
		),
		mcp.WithString(
			"target_dataset_id",
			mcp.Required(),
			mcp.Description("Dataset on the target side"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}
		sourceID, errResult := requireTrimmed(req, "source_dataset_id")
		if errResult != nil {
			return errResult, nil
		}
		targetID, errResult := requireTrimmed(req, "target_dataset_id")
		if errResult != nil {
			return errResult, nil
		}

		candidates, err := deps.Datasets.DetectRelationships(ctx, projectID, sourceID, targetID)
		if err != nil {
			return handleEngineError(deps, "detect_relationships", err)
		}
		return jsonResult(relationshipsResponse{Relationships: candidates, Count: len(candidates)})
	})
}

func registerDeclareRelationshipTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"declare_relationship",
		mcp.WithDescription(
			"Declare that two columns join. The declaration has confidence 1.0 and outranks "+
				"every detected candidate. Fails with column_not_found when either column is missing.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithString(
			"source_dataset_id",
			mcp.Required(),
			mcp.Description("Dataset holding source_column"),
		),
		mcp.WithString(
			"source_column",
			mcp.Required(),
			mcp.Description("Column name in the source dataset"),
		),
		mcp.WithString(
			"target_dataset_id",
			mcp.Required(),
			mcp.Description("Dataset holding target_column"),
		),
		mcp.WithString(
			"target_column",
			mcp.Required(),
			mcp.Description("Column name in the target dataset"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}

		var decl services.DeclareRelationshipRequest
		fields := []struct {
			key  string
			dest *string
		}{
			{"source_dataset_id", &decl.SourceDatasetID},
			{"source_column", &decl.SourceColumn},
			{"target_dataset_id", &decl.TargetDatasetID},
			{"target_column", &decl.TargetColumn},
		}
		for _, f := range fields {
			val, errResult := requireTrimmed(req, f.key)
			if errResult != nil {
				return errResult, nil
			}
			*f.dest = val
		}

		candidate, err := deps.Datasets.DeclareRelationship(ctx, projectID, decl)
		if err != nil {
			return handleEngineError(deps, "declare_relationship", err)
		}
		return jsonResult(candidate)
	})
}

type joinResponse struct {
	DatasetIDs []string          `json:"dataset_ids"`
	RowCount   int               `json:"row_count"`
	Columns    []string          `json:"columns"`
	Trace      *models.JoinTrace `json:"join_trace"`
	WeakMatch  bool              `json:"weak_match"`
	Rows       []models.Record   `json:"rows"`
}

func registerResolveJoinTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"resolve_join",
		mcp.WithDescription(
			"Join the listed datasets over the project's relationships. The first dataset id "+
				"in sorted order anchors a chain of left joins. Returns the join trace and the first "+
				"preview_rows rows. Fails with disconnected_datasets when no relationship path "+
				"reaches every dataset.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID"),
		),
		mcp.WithArray(
			"dataset_ids",
			mcp.Required(),
			mcp.Description("Datasets to join"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber(
			"preview_rows",
			mcp.Description(fmt.Sprintf("Rows to return (default %d, max %d)", defaultJoinPreviewRows, services.MaxPreviewRows)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, errResult := requireProjectID(req)
		if errResult != nil {
			return errResult, nil
		}
		ids := getStringSlice(req, "dataset_ids")
		if len(ids) == 0 {
			return NewErrorResult("invalid_parameters", "dataset_ids must list at least one dataset"), nil
		}

		limit := getOptionalInt(req, "preview_rows", defaultJoinPreviewRows)
		if limit <= 0 {
			limit = defaultJoinPreviewRows
		}
		if limit > services.MaxPreviewRows {
			limit = services.MaxPreviewRows
		}

		joined, err := deps.Datasets.ResolveJoin(ctx, projectID, ids)
		if err != nil {
			return handleEngineError(deps, "resolve_join", err)
		}

		resp := joinResponse{
			RowCount: joined.RowCount,
			Columns:  joined.ColumnNames(),
			Trace:    joined.Trace,
			Rows:     joined.Rows(limit),
		}
		if joined.Trace != nil {
			resp.DatasetIDs = joined.Trace.DatasetIDs
			resp.WeakMatch = joined.Trace.HasWeakMatch()
		}
		return jsonResult(resp)
	})
}
