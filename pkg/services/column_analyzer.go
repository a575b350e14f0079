package services

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"

	"github.com/lemur-data/lemur-engine/pkg/models"
)

// identifierTokens are singular name tokens that mark a key column.
var identifierTokens = map[string]bool{
	"id":         true,
	"key":        true,
	"code":       true,
	"identifier": true,
	"uuid":       true,
	"guid":       true,
	"pk":         true,
	"sku":        true,
}

// datetimeLayouts are the accepted formats, tried in order.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006-01",
}

const (
	patternNumeric  = "numeric"
	patternPrefixed = "prefixed"
	patternUUID     = "uuid"
)

var (
	uuidPattern     = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	prefixedPattern = regexp.MustCompile(`^[A-Za-z]+[-_]?[0-9]+$`)
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	emailPattern    = regexp.MustCompile(`[^@\s]+@[^@\s]+\.[^@\s]+`)
)

// ColumnAnalyzer classifies a single column and summarises it.
// It is a pure function of the column name and values.
type ColumnAnalyzer struct {
	policy AnalysisPolicy
}

// NewColumnAnalyzer creates an analyzer using the given policy.
func NewColumnAnalyzer(policy AnalysisPolicy) *ColumnAnalyzer {
	return &ColumnAnalyzer{policy: policy}
}

// columnScan collects everything the classification steps need in one pass.
type columnScan struct {
	rowCount  int
	nonNull   []models.Value
	kinds     map[models.ValueKind]int
	distinct  int
	firstSeen []string
	counts    map[string]int
	sample    map[string]models.Value
}

func scanColumn(values []models.Value) *columnScan {
	s := &columnScan{
		rowCount: len(values),
		kinds:    make(map[models.ValueKind]int),
		counts:   make(map[string]int),
		sample:   make(map[string]models.Value),
	}
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		s.nonNull = append(s.nonNull, v)
		s.kinds[v.Kind]++
		k := v.Key()
		if _, seen := s.counts[k]; !seen {
			s.firstSeen = append(s.firstSeen, k)
			s.sample[k] = v
		}
		s.counts[k]++
	}
	s.distinct = len(s.firstSeen)
	return s
}

// Analyze produces the profile and semantic role of one column.
// Checks run in a fixed order and the first match wins.
func (a *ColumnAnalyzer) Analyze(name string, values []models.Value) models.ColumnProfile {
	scan := scanColumn(values)

	profile := models.ColumnProfile{
		Name:          name,
		RowCount:      scan.rowCount,
		NullCount:     scan.rowCount - len(scan.nonNull),
		NullPct:       percent(scan.rowCount-len(scan.nonNull), scan.rowCount),
		DistinctCount: scan.distinct,
		DistinctPct:   percent(scan.distinct, scan.rowCount),
	}

	switch {
	case scan.rowCount == 0:
		profile.Role = models.RoleCategorical
		profile.Categorical = &models.CategoricalSummary{TopValues: []models.ValueCount{}}
		return profile
	case len(scan.nonNull) == 0:
		profile.Role = models.RoleUnknown
		return profile
	case scan.distinct == 1:
		profile.Role = models.RoleCategorical
		profile.Categorical = a.topValues(scan)
		return profile
	}

	times, timeRatio := parseTimes(scan.nonNull)
	nums, numRatio := parseNumbers(scan.nonNull)

	if id := a.identifierSummary(name, scan, timeRatio); id != nil {
		profile.Role = models.RoleIdentifier
		profile.Identifier = id
		return profile
	}

	if timeRatio >= a.policy.DatetimeParseRatio {
		profile.Role = models.RoleDatetime
		profile.Datetime = datetimeSummary(times)
		return profile
	}

	if numRatio >= a.policy.NumericParseRatio {
		// Low-cardinality integer codes read better as categories than measures.
		if allIntegers(nums) && a.isLowCardinality(scan) {
			profile.Role = models.RoleCategorical
			profile.Categorical = a.topValues(scan)
			return profile
		}
		profile.Role = models.RoleNumeric
		profile.Numeric = numericSummary(nums)
		return profile
	}

	// Only single-kind columns can be categorical; mixed kinds fall through to free text.
	if len(scan.kinds) == 1 && a.isLowCardinality(scan) {
		profile.Role = models.RoleCategorical
		profile.Categorical = a.topValues(scan)
		return profile
	}

	profile.Role = models.RoleFreeText
	profile.Text = textSummary(scan.nonNull)
	return profile
}

func (a *ColumnAnalyzer) isLowCardinality(scan *columnScan) bool {
	return percent(scan.distinct, scan.rowCount) <= a.policy.CategoricalDistinctPct &&
		scan.distinct <= a.policy.CategoricalMaxDistinct
}

// topValues ranks values by descending count; sort.SliceStable keeps first-seen order on ties.
func (a *ColumnAnalyzer) topValues(scan *columnScan) *models.CategoricalSummary {
	keys := make([]string, len(scan.firstSeen))
	copy(keys, scan.firstSeen)
	sort.SliceStable(keys, func(i, j int) bool {
		return scan.counts[keys[i]] > scan.counts[keys[j]]
	})
	if len(keys) > a.policy.TopK {
		keys = keys[:a.policy.TopK]
	}

	top := make([]models.ValueCount, len(keys))
	for i, k := range keys {
		top[i] = models.ValueCount{
			Value:   scan.sample[k],
			Count:   scan.counts[k],
			Percent: percent(scan.counts[k], len(scan.nonNull)),
		}
	}
	return &models.CategoricalSummary{TopValues: top}
}

// identifierSummary returns nil unless the column is near-unique and either its
// name looks like a key or its values are strictly increasing.
func (a *ColumnAnalyzer) identifierSummary(name string, scan *columnScan, timeRatio float64) *models.IdentifierSummary {
	if percent(scan.distinct, scan.rowCount) < a.policy.IdentifierDistinctPct {
		return nil
	}

	nameMatch := IsIdentifierName(name)
	// Ordered timestamps are increasing too but they are not keys.
	monotonic := timeRatio < a.policy.DatetimeParseRatio && isMonotonicUnique(scan.nonNull)
	if !nameMatch && !monotonic {
		return nil
	}

	samples := make([]string, 0, 5)
	for _, k := range scan.firstSeen {
		if len(samples) == 5 {
			break
		}
		samples = append(samples, scan.sample[k].String())
	}

	return &models.IdentifierSummary{
		IsUnique:   scan.distinct == scan.rowCount,
		Pattern:    detectKeyPattern(scan.nonNull),
		Monotonic:  monotonic,
		NameMatch:  nameMatch,
		SampleKeys: samples,
	}
}

// IsIdentifierName reports whether the column name follows a key naming convention:
// its last word, singularised, is one of id/key/code/identifier/uuid/guid/pk/sku.
func IsIdentifierName(name string) bool {
	tokens := splitNameTokens(name)
	if len(tokens) == 0 {
		return false
	}
	last := inflection.Singular(tokens[len(tokens)-1])
	return identifierTokens[last]
}

// splitNameTokens splits snake_case, kebab-case, camelCase and PascalCase names
// into lowercase words. Acronym runs stay together ("CustomerID" -> customer, id).
func splitNameTokens(name string) []string {
	runes := []rune(name)
	var tokens []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) &&
				!(i+2 == len(runes) && runes[i+1] == 's'):
				// "HTTPServer" splits before "Server"; a trailing plural "IDs" stays whole.
				flush()
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

// isMonotonicUnique reports whether the non-null values are all integers or all
// strings and strictly increase in row order.
func isMonotonicUnique(values []models.Value) bool {
	if len(values) < 2 {
		return false
	}
	kind := values[0].Kind
	for i, v := range values {
		if v.Kind != kind {
			return false
		}
		switch kind {
		case models.KindNumber:
			if !v.IsInteger() {
				return false
			}
		case models.KindString:
		default:
			return false
		}
		if i > 0 && values[i-1].Compare(v) >= 0 {
			return false
		}
	}
	return true
}

func detectKeyPattern(values []models.Value) string {
	if len(values) == 0 {
		return ""
	}
	numeric, prefixed, uuids := 0, 0, 0
	for _, v := range values {
		s := strings.TrimSpace(v.String())
		switch {
		case v.Kind == models.KindNumber:
			numeric++
		case uuidPattern.MatchString(s):
			uuids++
		case prefixedPattern.MatchString(s):
			prefixed++
		default:
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				numeric++
			}
		}
	}
	switch len(values) {
	case numeric:
		return patternNumeric
	case uuids:
		return patternUUID
	case prefixed:
		return patternPrefixed
	}
	return ""
}

// ParseTime parses a cell under the accepted datetime layouts. Numbers never parse.
func ParseTime(v models.Value) (time.Time, bool) {
	switch v.Kind {
	case models.KindTime:
		return v.Time, true
	case models.KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a cell as a finite float.
func ParseNumber(v models.Value) (float64, bool) {
	switch v.Kind {
	case models.KindNumber:
		return v.Num, true
	case models.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func parseTimes(values []models.Value) ([]time.Time, float64) {
	var out []time.Time
	for _, v := range values {
		if t, ok := ParseTime(v); ok {
			out = append(out, t)
		}
	}
	return out, float64(len(out)) / float64(len(values))
}

func parseNumbers(values []models.Value) ([]float64, float64) {
	var out []float64
	for _, v := range values {
		if f, ok := ParseNumber(v); ok {
			out = append(out, f)
		}
	}
	return out, float64(len(out)) / float64(len(values))
}

func allIntegers(xs []float64) bool {
	for _, x := range xs {
		if x != math.Trunc(x) {
			return false
		}
	}
	return true
}

func numericSummary(xs []float64) *models.NumericSummary {
	sorted := sortedCopy(xs)
	s := &models.NumericSummary{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean(xs),
		Median: quantile(sorted, 0.5),
		StdDev: populationStdDev(xs),
		Q25:    quantile(sorted, 0.25),
		Q75:    quantile(sorted, 0.75),
		Parsed: len(xs),
	}
	for _, x := range xs {
		switch {
		case x == 0:
			s.Zeros++
		case x < 0:
			s.Negatives++
		default:
			s.Positives++
		}
	}
	if len(xs) > 4 {
		iqr := s.Q75 - s.Q25
		lower, upper := s.Q25-1.5*iqr, s.Q75+1.5*iqr
		for _, x := range xs {
			if x < lower || x > upper {
				s.Outliers++
			}
		}
	}
	return s
}

func datetimeSummary(ts []time.Time) *models.DatetimeSummary {
	sorted := make([]time.Time, len(ts))
	copy(sorted, ts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	minT, maxT := sorted[0], sorted[len(sorted)-1]
	s := &models.DatetimeSummary{
		Min:      minT.Format(time.RFC3339),
		Max:      maxT.Format(time.RFC3339),
		SpanDays: maxT.Sub(minT).Hours() / 24,
		Parsed:   len(ts),
	}

	var days []time.Time
	seen := make(map[string]bool)
	for _, t := range sorted {
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
			s.HasTime = true
		}
		d := t.Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			days = append(days, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	s.UniqueDates = len(days)
	s.Frequency = inferFrequency(days)
	return s
}

// inferFrequency classifies the modal gap between consecutive distinct dates.
func inferFrequency(days []time.Time) models.DatetimeFrequency {
	if len(days) < 2 {
		return models.FrequencyIrregular
	}
	gaps := make(map[int]int)
	for i := 1; i < len(days); i++ {
		gaps[int(days[i].Sub(days[i-1]).Hours()/24)]++
	}
	mode, best := 0, 0
	for gap, n := range gaps {
		if n > best || (n == best && gap < mode) {
			mode, best = gap, n
		}
	}
	switch {
	case mode == 1:
		return models.FrequencyDaily
	case mode == 7:
		return models.FrequencyWeekly
	case mode >= 28 && mode <= 31:
		return models.FrequencyMonthly
	case mode >= 365 && mode <= 366:
		return models.FrequencyYearly
	}
	return models.FrequencyIrregular
}

func textSummary(values []models.Value) *models.TextSummary {
	s := &models.TextSummary{MinLength: math.MaxInt}
	var totalLen, totalWords int
	for _, v := range values {
		str := v.String()
		n := utf8.RuneCountInString(str)
		totalLen += n
		totalWords += len(strings.Fields(str))
		if n < s.MinLength {
			s.MinLength = n
		}
		if n > s.MaxLength {
			s.MaxLength = n
		}
		if !s.HasURLs && urlPattern.MatchString(str) {
			s.HasURLs = true
		}
		if !s.HasEmails && emailPattern.MatchString(str) {
			s.HasEmails = true
		}
	}
	s.AvgLength = float64(totalLen) / float64(len(values))
	s.AvgWords = float64(totalWords) / float64(len(values))
	return s
}
