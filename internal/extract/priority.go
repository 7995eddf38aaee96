package extract

import (
	"regexp"
	"strings"

	"tasknerd/internal/types"
)

// PrioritySuggestion is the result of scanning text for priority keywords.
type PrioritySuggestion struct {
	Priority   types.Priority
	Confidence float64
	Keyword    string
	// Negated is set for phrases like "not urgent". The priority is a guess
	// at the opposite level and should be confirmed with the user.
	Negated bool
}

// Found reports whether any priority signal was seen.
func (s PrioritySuggestion) Found() bool { return s.Priority != "" }

// Certain reports whether the suggestion can be bound without asking.
func (s PrioritySuggestion) Certain() bool { return s.Found() && !s.Negated }

var (
	explicitPriority = regexp.MustCompile(`(?i)\b(high|medium|low|normal)\s+priority\b|\bpriority\s*(?:is|of|to|:|=)?\s*(high|medium|low|normal)\b`)
	bareLevel        = regexp.MustCompile(`^(?:it'?s\s+|make\s+it\s+|set\s+(?:it\s+)?to\s+)?(high|medium|low|normal|urgent|important)$`)
	negation         = regexp.MustCompile(`\b(?:not|isn'?t|no|never|don'?t|doesn'?t|nothing)\s+(?:\w+\s+)?$`)
	urgencyWords     = regexp.MustCompile(`(?i)\b(?:urgent|asap)\b`)
)

var priorityKeywords = []struct {
	level    types.Priority
	keywords []string
}{
	{types.PriorityHigh, []string{"very important", "urgent", "critical", "important", "asap", "crucial"}},
	{types.PriorityLow, []string{"minor", "trivial", "someday", "whenever", "eventually", "not a priority"}},
	{types.PriorityMedium, []string{"normal", "regular", "moderate"}},
}

var keywordPatterns = buildKeywordPatterns()

type keywordPattern struct {
	level   types.Priority
	keyword string
	re      *regexp.Regexp
}

func buildKeywordPatterns() []keywordPattern {
	var out []keywordPattern
	for _, group := range priorityKeywords {
		for _, kw := range group.keywords {
			out = append(out, keywordPattern{
				level:   group.level,
				keyword: kw,
				re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
			})
		}
	}
	return out
}

func normalizeLevel(s string) types.Priority {
	switch s {
	case "normal":
		return types.PriorityMedium
	case "urgent", "important":
		return types.PriorityHigh
	}
	p, _ := types.ParsePriority(s)
	return p
}

func opposite(p types.Priority) types.Priority {
	switch p {
	case types.PriorityHigh:
		return types.PriorityLow
	case types.PriorityLow:
		return types.PriorityHigh
	}
	return types.PriorityMedium
}

// SuggestPriority scans text for a priority. Explicit "X priority" phrases win
// over loose keywords; a keyword preceded by a negation is returned as Negated
// with low confidence.
func SuggestPriority(text string) PrioritySuggestion {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?")
	if s == "" {
		return PrioritySuggestion{}
	}

	if m := bareLevel.FindStringSubmatch(s); m != nil {
		return PrioritySuggestion{Priority: normalizeLevel(m[1]), Confidence: 0.95, Keyword: m[1]}
	}

	if loc := explicitPriority.FindStringSubmatchIndex(s); loc != nil {
		level := ""
		if loc[2] >= 0 {
			level = s[loc[2]:loc[3]]
		} else {
			level = s[loc[4]:loc[5]]
		}
		p := normalizeLevel(level)
		if negation.MatchString(s[:loc[0]]) {
			return PrioritySuggestion{Priority: opposite(p), Confidence: 0.4, Keyword: level, Negated: true}
		}
		return PrioritySuggestion{Priority: p, Confidence: 0.9, Keyword: level}
	}

	for _, kp := range keywordPatterns {
		loc := kp.re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if negation.MatchString(s[:loc[0]]) {
			return PrioritySuggestion{Priority: opposite(kp.level), Confidence: 0.4, Keyword: kp.keyword, Negated: true}
		}
		return PrioritySuggestion{Priority: kp.level, Confidence: 0.75, Keyword: kp.keyword}
	}
	return PrioritySuggestion{}
}

// StripPriorityPhrases removes priority wording from a title candidate.
func StripPriorityPhrases(title string) string {
	out := explicitPriority.ReplaceAllString(title, "")
	out = urgencyWords.ReplaceAllString(out, "")
	return strings.Join(strings.Fields(out), " ")
}
