package oracle

import "regexp"

// syntaxRule recognizes a construct oracles invent that the plan IR does not
// have.
type syntaxRule struct {
	name    string
	pattern *regexp.Regexp
}

var invalidSyntaxRules = []syntaxRule{
	{
		name:    "nonexistent aggregation function",
		pattern: regexp.MustCompile(`(?i)"(?:fn|function|func|op|type)"\s*:\s*"(?:\$[a-z_]+|median|mode|group_concat|string_agg|array_agg|stddev|std|variance|var|percentile|distinct_count|count_distinct|first|last)"`),
	},
	{
		name:    "array index notation in sort field",
		pattern: regexp.MustCompile(`"(?:by|field|sort_by|sortBy)"\s*:\s*"[^"]*\[-?\d+\]"`),
	},
	{
		name:    "nonexistent negation operator",
		pattern: regexp.MustCompile(`(?i)"op"\s*:\s*"(?:!|!in|!contains|not_in|notin|nin|not_contains|notcontains|not_like|notlike|not_eq|not)"`),
	},
	{
		name:    "query-language operator",
		pattern: regexp.MustCompile(`"\$(?:group|match|project|sort|unwind|lookup|sum|avg)"\s*:`),
	},
}

// DetectInvalidSyntax reports the first hallucinated construct found in a
// raw oracle response.
func DetectInvalidSyntax(text string) (string, bool) {
	for _, rule := range invalidSyntaxRules {
		if m := rule.pattern.FindString(text); m != "" {
			return rule.name + ": " + m, true
		}
	}
	return "", false
}
