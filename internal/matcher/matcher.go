// Package matcher resolves free-text task references ("the milk one") to
// concrete tasks by fuzzy title similarity.
package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// Options holds the matching thresholds.
type Options struct {
	SingleThreshold float64 `yaml:"single_threshold"`
	MultiThreshold  float64 `yaml:"multi_threshold"`
	MaxCandidates   int     `yaml:"max_candidates"`
}

// DefaultOptions returns the standard 0.70 / 0.60 thresholds with at most
// five candidates.
func DefaultOptions() Options {
	return Options{
		SingleThreshold: 0.70,
		MultiThreshold:  0.60,
		MaxCandidates:   5,
	}
}

// Matcher ranks tasks against a search phrase. It holds no per-call state.
type Matcher struct {
	opts Options
}

// New returns a Matcher; zero-valued options fall back to the defaults.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.SingleThreshold <= 0 {
		opts.SingleThreshold = def.SingleThreshold
	}
	if opts.MultiThreshold <= 0 {
		opts.MultiThreshold = def.MultiThreshold
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = def.MaxCandidates
	}
	return &Matcher{opts: opts}
}

// Options returns the effective thresholds.
func (m *Matcher) Options() Options { return m.opts }

type scored struct {
	task  types.Task
	score float64
}

// Find scores query against tasks. The caller is responsible for passing only
// tasks owned by the requesting user.
//
// Exactly one candidate at or above the single threshold with every other
// candidate below the multi threshold is a SingleMatch. Two or more at or
// above the multi threshold is MultipleMatches, even when one of them would
// clear the single threshold on its own. A lone candidate between the two
// thresholds yields NoMatch carrying that candidate as a hint.
func (m *Matcher) Find(query string, tasks []types.Task) types.MatchOutcome {
	timer := logging.StartTimer(logging.CategoryMatcher, "find")
	defer timer.Stop()

	full := normalize(query)
	q := stripFiller(full)
	if q == "" || len(tasks) == 0 {
		return types.MatchOutcome{Kind: types.NoMatch}
	}

	var (
		exact []types.Task
		kept  []scored
	)
	for _, t := range tasks {
		n := normalize(t.Title)
		isExact := n == full || n == q
		if isExact {
			exact = append(exact, t)
		}
		if s := Similarity(q, t.Title); isExact || s >= m.opts.MultiThreshold {
			kept = append(kept, scored{task: t, score: s})
		}
	}

	// An exact title wins outright only when nothing else is close.
	if len(exact) == 1 && len(kept) == 1 {
		logging.MatcherDebug("exact title match for %q: task %d", query, exact[0].ID)
		return types.MatchOutcome{
			Kind:       types.SingleMatch,
			Candidates: []types.MatchCandidate{candidateOf(exact[0], 1.0)},
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		li, lj := len([]rune(kept[i].task.Title)), len([]rune(kept[j].task.Title))
		if li != lj {
			return li < lj
		}
		return kept[i].task.ID < kept[j].task.ID
	})
	if len(kept) > m.opts.MaxCandidates {
		kept = kept[:m.opts.MaxCandidates]
	}

	candidates := make([]types.MatchCandidate, 0, len(kept))
	for _, k := range kept {
		candidates = append(candidates, candidateOf(k.task, k.score))
	}

	var out types.MatchOutcome
	switch {
	case len(kept) >= 2:
		out = types.MatchOutcome{Kind: types.MultipleMatches, Candidates: candidates}
	case len(kept) == 1 && kept[0].score >= m.opts.SingleThreshold:
		out = types.MatchOutcome{Kind: types.SingleMatch, Candidates: candidates}
	default:
		out = types.MatchOutcome{Kind: types.NoMatch, Candidates: candidates}
	}
	logging.MatcherDebug("query %q over %d tasks -> %s (%d candidates)", query, len(tasks), out.Kind, len(out.Candidates))
	return out
}

func candidateOf(t types.Task, score float64) types.MatchCandidate {
	return types.MatchCandidate{
		TaskID:     t.ID,
		Title:      t.Title,
		Confidence: math.Round(score*100) / 100,
	}
}

// =============================================================================
// SIMILARITY
// =============================================================================

// Similarity returns a score in [0,1] between a query and a title: the best
// of plain edit-distance ratio, token-sorted ratio and best-window ratio.
// The window ratio only applies to queries of three or more characters.
func Similarity(query, title string) float64 {
	a, b := normalize(query), normalize(title)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	best := ratio(a, b)
	if s := ratio(sortTokens(a), sortTokens(b)); s > best {
		best = s
	}
	if len([]rune(a)) >= 3 {
		if s := partialRatio(a, b); s > best {
			best = s
		}
	}
	return best
}

func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// partialRatio slides the shorter string over the longer one and keeps the
// best aligned ratio.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := ratio(s, string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

func sortTokens(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

// normalize lowercases, turns punctuation into spaces and collapses runs.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var filler = wordSet("the my a an task tasks one item todo called named about that this")

func wordSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// stripFiller drops reference words ("the ... task") from a normalized query.
// An all-filler query is returned unchanged.
func stripFiller(q string) string {
	var kept []string
	for _, w := range strings.Fields(q) {
		if !filler[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return q
	}
	return strings.Join(kept, " ")
}
