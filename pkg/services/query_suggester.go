package services

import (
	"fmt"
	"strings"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// DefaultMaxSuggestions bounds Suggest when the caller passes no limit.
const DefaultMaxSuggestions = 7

// SuggestionInput is everything the suggester looks at.
type SuggestionInput struct {
	// Profile of the dataset the suggestions are about. May be nil.
	Profile *models.DatasetProfile

	// Context is the project's free-text business context.
	Context string

	// History is the conversation so far in chronological order.
	History []models.ChatMessage

	// Relationships of the project, in edge-selection order.
	Relationships []models.RelationshipCandidate

	// DatasetNames maps dataset ids to display names.
	DatasetNames map[string]string
}

// QuerySuggester proposes questions a user could ask about their data.
type QuerySuggester struct{}

// NewQuerySuggester creates a QuerySuggester.
func NewQuerySuggester() *QuerySuggester {
	return &QuerySuggester{}
}

// Suggest returns up to max de-duplicated suggestions in category order:
// overview (early in a conversation), data quality, ranking, trend and correlation,
// relationships, business context, and follow-ups to the last user message.
func (q *QuerySuggester) Suggest(in SuggestionInput, max int) []string {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	var suggestions []string
	if p := in.Profile; p != nil {
		numeric, categorical := columnsByKind(p)
		if len(in.History) < 2 {
			suggestions = append(suggestions, overviewQueries(p, numeric, categorical)...)
		}
		suggestions = append(suggestions, qualityQueries(p)...)
		suggestions = append(suggestions, rankingQueries(numeric, categorical)...)
		suggestions = append(suggestions, trendQueries(p, numeric)...)
	}
	suggestions = append(suggestions, relationshipQueries(in.Relationships, in.DatasetNames)...)
	if in.Context != "" {
		suggestions = append(suggestions, contextQueries(in.Context)...)
	}
	suggestions = append(suggestions, followUpQueries(in.History)...)

	return firstUnique(suggestions, max)
}

// AfterChat drops suggestions similar to what was just asked and appends
// follow-ups triggered by the answer.
func (q *QuerySuggester) AfterChat(current []string, userMessage, aiResponse string) []string {
	asked := strings.ToLower(userMessage)
	out := make([]string, 0, len(current)+4)
	for _, s := range current {
		if !similarQuery(strings.ToLower(s), asked) {
			out = append(out, s)
		}
	}

	response := strings.ToLower(aiResponse)
	if strings.Contains(response, "missing") || strings.Contains(response, "null") {
		out = append(out, "How should I handle these missing values?")
	}
	if strings.Contains(response, "outlier") {
		out = append(out, "Should I investigate these outliers further?")
	}
	if strings.Contains(response, "correlation") || strings.Contains(response, "relationship") {
		out = append(out, "Can you visualize this relationship?")
	}
	if strings.Contains(response, "increase") || strings.Contains(response, "decrease") {
		out = append(out, "What might be causing this change?")
	}
	return firstUnique(out, 0)
}

// columnsByKind returns numeric and textual (categorical, then free-text) column names.
func columnsByKind(p *models.DatasetProfile) (numeric, categorical []string) {
	var freeText []string
	for _, c := range p.Columns {
		switch c.Role {
		case models.RoleNumeric:
			numeric = append(numeric, c.Name)
		case models.RoleCategorical:
			categorical = append(categorical, c.Name)
		case models.RoleFreeText:
			freeText = append(freeText, c.Name)
		}
	}
	return numeric, append(categorical, freeText...)
}

func overviewQueries(p *models.DatasetProfile, numeric, categorical []string) []string {
	queries := []string{
		"What is the overall summary of this data?",
		fmt.Sprintf("Show me the distribution of data across %d columns", p.ColumnCount),
	}
	switch len(numeric) {
	case 0:
	case 1:
		queries = append(queries, fmt.Sprintf("What are the statistics for %s?", numeric[0]))
	default:
		queries = append(queries, fmt.Sprintf("Compare the ranges of %s and %s", numeric[0], numeric[1]))
	}
	if len(categorical) > 0 {
		queries = append(queries, fmt.Sprintf("What are the unique values in %s?", categorical[0]))
	}
	return queries
}

func qualityQueries(p *models.DatasetProfile) []string {
	var queries []string

	var missing []string
	for _, c := range p.Columns {
		if c.NullPct > 0 {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		if len(missing) > 2 {
			missing = missing[:2]
		}
		queries = append(queries, fmt.Sprintf("Why do columns %s have missing values?", strings.Join(missing, ", ")))
	}

	if len(p.Issues) > 0 {
		queries = append(queries, "What data quality issues should I be aware of?")
	}

	for _, c := range p.Columns {
		if c.Numeric != nil && c.Numeric.Outliers > 0 {
			queries = append(queries, fmt.Sprintf("Show me the outliers in %s", c.Name))
			break
		}
	}
	return queries
}

func rankingQueries(numeric, categorical []string) []string {
	var queries []string
	if len(numeric) > 0 {
		queries = append(queries, fmt.Sprintf("What are the top 10 highest values for %s?", numeric[0]))
		if len(numeric) > 1 {
			queries = append(queries, fmt.Sprintf("Which records have both high %s and %s?", numeric[0], numeric[1]))
		}
	}
	if len(categorical) > 0 && len(numeric) > 0 {
		queries = append(queries,
			fmt.Sprintf("What is the average %s by %s?", numeric[0], categorical[0]),
			fmt.Sprintf("Which %s has the highest total %s?", categorical[0], numeric[0]))
	}
	return queries
}

func trendQueries(p *models.DatasetProfile, numeric []string) []string {
	var queries []string
	if dates := p.Hints.PotentialDates; len(dates) > 0 && len(numeric) > 0 {
		queries = append(queries,
			fmt.Sprintf("Show me the trend of %s over %s", numeric[0], dates[0]),
			fmt.Sprintf("What patterns exist in the data by %s?", dates[0]))
	}
	if len(numeric) >= 2 {
		queries = append(queries, fmt.Sprintf("Is there a correlation between %s and %s?", numeric[0], numeric[1]))
	}
	return queries
}

func relationshipQueries(rels []models.RelationshipCandidate, names map[string]string) []string {
	if len(rels) == 0 {
		return nil
	}
	top := rels[0]
	name := func(id string) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return id
	}
	return []string{fmt.Sprintf("What can I learn by combining %s and %s on %s?",
		name(top.SourceDatasetID), name(top.TargetDatasetID), top.SourceColumn)}
}

func contextQueries(context string) []string {
	lower := strings.ToLower(context)
	var queries []string
	if strings.Contains(lower, "revenue") || strings.Contains(lower, "sales") {
		queries = append(queries, "What drives the highest revenue/sales?", "Show me revenue trends and patterns")
	}
	if strings.Contains(lower, "customer") {
		queries = append(queries, "What are the customer segments in this data?", "Which customers contribute most to the business?")
	}
	if strings.Contains(lower, "product") {
		queries = append(queries, "Which products perform best?", "What product patterns should I know about?")
	}
	if strings.Contains(lower, "performance") {
		queries = append(queries, "What are the key performance indicators?", "Where are the performance bottlenecks?")
	}
	return queries
}

func followUpQueries(history []models.ChatMessage) []string {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.ChatRoleUser {
			last = strings.ToLower(history[i].Content)
			break
		}
	}
	if last == "" {
		return nil
	}

	var queries []string
	if strings.Contains(last, "outlier") {
		queries = append(queries, "What might be causing these outliers?", "Should I exclude these outliers from analysis?")
	}
	if strings.Contains(last, "average") || strings.Contains(last, "mean") {
		queries = append(queries, "How does this compare to the median?", "What about the standard deviation?")
	}
	if strings.Contains(last, "top") || strings.Contains(last, "highest") {
		queries = append(queries, "What about the bottom/lowest values?", "How do these compare to the average?")
	}
	if strings.Contains(last, "trend") {
		queries = append(queries, "Is this trend statistically significant?", "What factors might influence this trend?")
	}
	if strings.Contains(last, "correlation") {
		queries = append(queries, "Could this be causation or just correlation?", "What other factors should I consider?")
	}
	return queries
}

// similarQuery reports whether more than half of the shorter query's words appear in the other.
func similarQuery(a, b string) bool {
	wordsA, wordsB := strings.Fields(a), strings.Fields(b)
	shorter := min(len(wordsA), len(wordsB))
	if shorter == 0 {
		return false
	}

	inB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		inB[w] = true
	}
	common := make(map[string]bool)
	for _, w := range wordsA {
		if inB[w] {
			common[w] = true
		}
	}
	return float64(len(common))/float64(shorter) > 0.5
}

// firstUnique keeps the first occurrence of each suggestion, up to max (0 means all).
func firstUnique(items []string, max int) []string {
	seen := make(map[string]bool, len(items))
	out := []string{}
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
