package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/llm"
	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
	"github.com/lemur-data/lemur-engine/pkg/retry"
)

const (
	// maxChatHistory is how many earlier turns are sent with each question.
	maxChatHistory = 50

	sampleRows      = 3
	maxPromptCell   = 60
	maxPromptTop    = 5
	assistantPrompt = "You are a helpful data analysis assistant."
)

// ChatService answers questions about a project's data through an LLM.
type ChatService interface {
	// Chat sends message with the project's data description and history, records
	// both turns, and returns the answer with refreshed suggestions.
	// Returns apperrors.ErrLLMUnavailable when no provider is configured.
	Chat(ctx context.Context, projectID uuid.UUID, message string) (*models.ChatResponse, error)

	// History returns up to limit most recent turns in chronological order.
	History(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error)

	// Suggestions proposes questions for the project's most recent dataset.
	Suggestions(ctx context.Context, projectID uuid.UUID) ([]string, error)
}

type chatService struct {
	projects      ProjectService
	datasets      DatasetService
	conversations repositories.ConversationRepository
	client        llm.ChatClient
	suggester     *QuerySuggester
	retryConfig   *retry.Config
	now           func() time.Time
	logger        *zap.Logger
}

var _ ChatService = (*chatService)(nil)

// NewChatService creates a ChatService. client may be nil, which disables Chat.
func NewChatService(
	projects ProjectService,
	datasets DatasetService,
	conversations repositories.ConversationRepository,
	client llm.ChatClient,
	logger *zap.Logger,
) ChatService {
	logger = logger.Named("chat")
	retryConfig := retry.LLMConfig()
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying LLM request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return &chatService{
		projects:      projects,
		datasets:      datasets,
		conversations: conversations,
		client:        client,
		suggester:     NewQuerySuggester(),
		retryConfig:   retryConfig,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

// projectData is the snapshot a chat turn is built from.
type projectData struct {
	project       *models.Project
	datasets      []*models.Dataset
	profiles      map[string]*models.DatasetProfile
	relationships []models.RelationshipCandidate
}

func (s *chatService) load(ctx context.Context, projectID uuid.UUID) (*projectData, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	summaries, err := s.datasets.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	data := &projectData{project: project, profiles: make(map[string]*models.DatasetProfile, len(summaries))}
	for _, summary := range summaries {
		ds, err := s.datasets.Get(ctx, projectID, summary.ID)
		if err != nil {
			return nil, err
		}
		profile, err := s.datasets.Profile(ctx, projectID, summary.ID)
		if err != nil {
			return nil, err
		}
		data.datasets = append(data.datasets, ds)
		data.profiles[ds.ID] = profile
	}

	data.relationships, err = s.datasets.ListRelationships(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *chatService) Chat(ctx context.Context, projectID uuid.UUID, message string) (*models.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}

	data, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, apperrors.ErrLLMUnavailable
	}

	history, err := s.conversations.List(ctx, projectID, maxChatHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	system, err := buildSystemPrompt(data)
	if err != nil {
		return nil, err
	}
	req := &llm.ChatRequest{
		System:         system,
		History:        history,
		Prompt:         message,
		DataSummary:    dataSummary(data.datasets),
		ProjectContext: data.project.Context,
	}

	s.logger.Info("Sending chat request",
		zap.String("project_id", projectID.String()),
		zap.String("model", s.client.GetModel()),
		zap.Int("datasets", len(data.datasets)),
		zap.Int("history", len(history)))

	start := time.Now()
	reply, err := retry.DoIfRetryableWithResult(ctx, s.retryConfig, func() (string, error) {
		return s.client.Complete(ctx, req)
	})
	if err != nil {
		s.logger.Error("Chat request failed",
			zap.String("project_id", projectID.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get chat response: %w", err)
	}

	userTurn := models.ChatMessage{Role: models.ChatRoleUser, Content: message, CreatedAt: s.now()}
	assistantTurn := models.ChatMessage{Role: models.ChatRoleAssistant, Content: reply, CreatedAt: s.now()}
	for _, turn := range []*models.ChatMessage{&userTurn, &assistantTurn} {
		if err := s.conversations.Append(ctx, projectID, turn); err != nil {
			return nil, fmt.Errorf("failed to record conversation: %w", err)
		}
	}

	input := s.suggestionInput(data)
	input.History = append(history, userTurn, assistantTurn)
	suggestions := s.suggester.AfterChat(s.suggester.Suggest(input, DefaultMaxSuggestions), message, reply)

	return &models.ChatResponse{Response: reply, Suggestions: suggestions}, nil
}

func (s *chatService) History(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxChatHistory {
		limit = maxChatHistory
	}
	msgs, err := s.conversations.List(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return msgs, nil
}

func (s *chatService) Suggestions(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	data, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	history, err := s.conversations.List(ctx, projectID, maxChatHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	input := s.suggestionInput(data)
	input.History = history
	return s.suggester.Suggest(input, DefaultMaxSuggestions), nil
}

// suggestionInput targets the most recently uploaded dataset.
func (s *chatService) suggestionInput(data *projectData) SuggestionInput {
	input := SuggestionInput{
		Context:       data.project.Context,
		Relationships: data.relationships,
		DatasetNames:  make(map[string]string, len(data.datasets)),
	}
	for _, ds := range data.datasets {
		input.DatasetNames[ds.ID] = ds.DisplayName
	}
	if n := len(data.datasets); n > 0 {
		input.Profile = data.profiles[data.datasets[n-1].ID]
	}
	return input
}

// ============================================================================
// Prompt rendering
// ============================================================================

// promptProfile is the part of a DatasetProfile worth the model's tokens.
type promptProfile struct {
	QualityScore float64        `yaml:"quality_score"`
	Assessment   string         `yaml:"assessment"`
	DuplicatePct float64        `yaml:"duplicate_pct,omitempty"`
	Columns      []promptColumn `yaml:"columns"`
	Issues       []string       `yaml:"issues,omitempty"`
	Warnings     []string       `yaml:"warnings,omitempty"`
	Correlations []promptCorrel `yaml:"correlations,omitempty"`
}

type promptColumn struct {
	Name      string   `yaml:"name"`
	Role      string   `yaml:"role"`
	NullPct   float64  `yaml:"null_pct,omitempty"`
	Distinct  int      `yaml:"distinct"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	Mean      *float64 `yaml:"mean,omitempty"`
	From      string   `yaml:"from,omitempty"`
	To        string   `yaml:"to,omitempty"`
	Frequency string   `yaml:"frequency,omitempty"`
	Top       []string `yaml:"top,omitempty"`
}

type promptCorrel struct {
	Columns     string  `yaml:"columns"`
	Coefficient float64 `yaml:"coefficient"`
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func toPromptProfile(p *models.DatasetProfile) promptProfile {
	out := promptProfile{
		QualityScore: round2(p.QualityScore),
		Assessment:   string(p.Assessment),
		DuplicatePct: round2(p.DuplicatePct),
		Issues:       p.Issues,
		Warnings:     p.Warnings,
	}
	for _, c := range p.Columns {
		pc := promptColumn{
			Name:     c.Name,
			Role:     string(c.Role),
			NullPct:  round2(c.NullPct),
			Distinct: c.DistinctCount,
		}
		if n := c.Numeric; n != nil {
			lo, hi, mean := round2(n.Min), round2(n.Max), round2(n.Mean)
			pc.Min, pc.Max, pc.Mean = &lo, &hi, &mean
		}
		if d := c.Datetime; d != nil {
			pc.From, pc.To, pc.Frequency = d.Min, d.Max, string(d.Frequency)
		}
		if cat := c.Categorical; cat != nil {
			for i, vc := range cat.TopValues {
				if i == maxPromptTop {
					break
				}
				pc.Top = append(pc.Top, fmt.Sprintf("%s (%d)", truncateCell(vc.Value.String()), vc.Count))
			}
		}
		out.Columns = append(out.Columns, pc)
	}
	for _, c := range p.Correlations {
		out.Correlations = append(out.Correlations, promptCorrel{
			Columns:     c.ColumnA + " ~ " + c.ColumnB,
			Coefficient: round2(c.Coefficient),
		})
	}
	return out
}

func truncateCell(s string) string {
	if utf8.RuneCountInString(s) <= maxPromptCell {
		return s
	}
	return string([]rune(s)[:maxPromptCell]) + "…"
}

// buildSystemPrompt renders the preamble, the business context, every dataset
// (shape, column roles, sample rows, profile as YAML) and the known relationships.
func buildSystemPrompt(data *projectData) (string, error) {
	var sb strings.Builder
	sb.WriteString(assistantPrompt)

	if data.project.Context != "" {
		sb.WriteString("\n\nBusiness Context:\n")
		sb.WriteString(data.project.Context)
	}

	names := make(map[string]string, len(data.datasets))
	for _, ds := range data.datasets {
		names[ds.ID] = ds.DisplayName

		fmt.Fprintf(&sb, "\n\nData Information:\n- File: %s (dataset %s)\n- Rows: %d\n- Columns: ", ds.DisplayName, ds.ID, ds.RowCount)
		cols := make([]string, len(ds.Columns))
		for i, c := range ds.Columns {
			cols[i] = fmt.Sprintf("%s (%s)", c.Name, c.Role)
		}
		sb.WriteString(strings.Join(cols, ", "))

		fmt.Fprintf(&sb, "\n\nSample Data (first %d rows):\n", sampleRows)
		sb.WriteString(strings.Join(ds.ColumnNames(), " | "))
		for _, rec := range ds.Rows(sampleRows) {
			cells := make([]string, len(rec))
			for i, f := range rec {
				cells[i] = truncateCell(f.Value.String())
			}
			sb.WriteString("\n")
			sb.WriteString(strings.Join(cells, " | "))
		}

		if profile := data.profiles[ds.ID]; profile != nil {
			rendered, err := yaml.Marshal(toPromptProfile(profile))
			if err != nil {
				return "", fmt.Errorf("failed to render profile of %s: %w", ds.ID, err)
			}
			sb.WriteString("\n\nProfile:\n")
			sb.Write(rendered)
		}
	}

	if len(data.relationships) > 0 {
		sb.WriteString("\n\nRelationships between datasets:")
		for _, r := range data.relationships {
			fmt.Fprintf(&sb, "\n- %s.%s -> %s.%s (confidence %.2f, %s)",
				names[r.SourceDatasetID], r.SourceColumn,
				names[r.TargetDatasetID], r.TargetColumn,
				r.Confidence, r.Provenance)
		}
	}

	return sb.String(), nil
}

// dataSummary is the plain description the offline client answers from.
func dataSummary(datasets []*models.Dataset) string {
	if len(datasets) == 0 {
		return ""
	}
	lines := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		lines = append(lines, fmt.Sprintf("Your data file '%s' contains %d rows and %d columns.\nColumns in your data: %s",
			ds.DisplayName, ds.RowCount, len(ds.Columns), strings.Join(ds.ColumnNames(), ", ")))
	}
	return strings.Join(lines, "\n\n")
}
