package resolver

import (
	"strconv"
	"strings"
)

// SampleLimit bounds how many rows are inspected when scoring columns.
const SampleLimit = 1200

// Row is one decoded record: column name to scalar value.
type Row map[string]any

// Fields holds the resolved column name per business concept. An empty string
// means the concept could not be resolved for this batch; consumers skip the
// related computations rather than failing.
type Fields struct {
	Revenue  string `json:"revenue,omitempty"`
	Usage    string `json:"usage,omitempty"`
	Traffic  string `json:"traffic,omitempty"`
	Cost     string `json:"cost,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Partner  string `json:"partner,omitempty"`
	Country  string `json:"country,omitempty"`
	Date     string `json:"date,omitempty"`
	Delay    string `json:"delay,omitempty"`
}

var (
	revenueKeywords  = []string{"revenue", "rev", "income", "earning", "retail"}
	usageKeywords    = []string{"usage", "consumption", "units", "quantity", "volume"}
	trafficKeywords  = []string{"traffic", "volume", "data", "duration", "minutes", "mb"}
	costKeywords     = []string{"cost", "charge", "expense", "wholesale", "fee"}
	expectedKeywords = []string{"expected", "tariff", "contract", "rated", "agreed"}
	actualKeywords   = []string{"actual", "billed", "invoiced", "settled"}
	partnerKeywords  = []string{"partner", "operator", "carrier", "network", "pmn", "vendor"}
	countryKeywords  = []string{"country", "nation", "destination", "visited", "geo"}
	delayKeywords    = []string{"delay", "dayslate", "latedays", "overdue", "aging", "dso"}
)

// Resolve infers which column carries each business concept from column naming
// and value shape. Rows beyond SampleLimit are ignored.
func Resolve(columns []string, rows []Row) Fields {
	if len(rows) > SampleLimit {
		rows = rows[:SampleLimit]
	}

	numericCounts := countNumeric(columns, rows)

	var f Fields
	f.Revenue = resolveConcept(columns, revenueKeywords, []string{"cost", "expected", "tax"}, numericCounts)
	f.Cost = resolveConcept(columns, costKeywords, []string{"revenue", "expected"}, numericCounts)
	f.Expected = resolveConcept(columns, expectedKeywords, nil, numericCounts)
	f.Actual = resolveConcept(columns, actualKeywords, []string{"expected"}, numericCounts)
	f.Usage = resolveConcept(columns, usageKeywords, nil, numericCounts)
	f.Traffic = resolveConcept(columns, trafficKeywords, nil, numericCounts)
	f.Partner = resolveLabel(columns, partnerKeywords)
	f.Country = resolveLabel(columns, countryKeywords)
	f.Date = resolveDateColumn(columns, rows)
	f.Delay = resolveConcept(columns, delayKeywords, nil, numericCounts)
	return f
}

// countNumeric tallies how often each column holds a numeric-coercible value.
func countNumeric(columns []string, rows []Row) map[string]int {
	counts := make(map[string]int, len(columns))
	for _, row := range rows {
		for _, col := range columns {
			if _, ok := NumericValue(row[col]); ok {
				counts[col]++
			}
		}
	}
	return counts
}

// resolveConcept scores each column by keyword hits and numeric occurrence.
// Ties favor the first column encountered.
func resolveConcept(columns []string, keywords, banned []string, numericCounts map[string]int) string {
	best := ""
	bestScore := 0
	for _, col := range columns {
		normalized := normalizeColumn(col)
		if normalized == "" || matchesAny(normalized, banned) {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if keywordMatches(normalized, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := 10*hits + numericCounts[col]
		if score > bestScore {
			best = col
			bestScore = score
		}
	}
	return best
}

// resolveLabel scores text-valued concepts (partner, country) by keywords only.
func resolveLabel(columns []string, keywords []string) string {
	best := ""
	bestScore := 0
	for _, col := range columns {
		normalized := normalizeColumn(col)
		hits := 0
		for _, kw := range keywords {
			if keywordMatches(normalized, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := 10 * hits
		if score > bestScore {
			best = col
			bestScore = score
		}
	}
	return best
}

func resolveDateColumn(columns []string, rows []Row) string {
	best := ""
	bestCount := 0
	for _, col := range columns {
		parsed, nonBlank := 0, 0
		for _, row := range rows {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			nonBlank++
			if _, ok := ParseDate(v); ok {
				parsed++
			}
		}
		if nonBlank == 0 || parsed*2 <= nonBlank {
			continue
		}
		if parsed > bestCount {
			best = col
			bestCount = parsed
		}
	}
	return best
}

// normalizeColumn lowercases and strips every non-alphanumeric character.
func normalizeColumn(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// keywordMatches tests keyword containment. Keywords of one or two characters
// require an exact match to avoid false positives from short tokens.
func keywordMatches(normalized, keyword string) bool {
	kw := normalizeColumn(keyword)
	if kw == "" {
		return false
	}
	if len(kw) <= 2 {
		return normalized == kw
	}
	return strings.Contains(normalized, kw)
}

func matchesAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if keywordMatches(normalized, kw) {
			return true
		}
	}
	return false
}

// NumericValue coerces a cell to float64. Nil, booleans and non-numeric
// strings are rejected.
func NumericValue(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(typed), ",", "")
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
