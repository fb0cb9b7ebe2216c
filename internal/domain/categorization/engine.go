package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// Rule maps a literal substring of the transaction details to a label.
type Rule struct {
	Pattern string
	Label   string
}

// MatchResult is the winning rule for a text.
type MatchResult struct {
	Pattern string // Pattern as written in the rule table
	Label   string
	Index   int // Position of the rule in the table
}

// Engine matches every rule pattern against a text in a single pass using
// the Aho-Corasick algorithm. When several patterns occur in the same text,
// the rule declared last wins.
type Engine struct {
	matcher *ahocorasick.Matcher
	rules   []Rule
	// winner[i] is the rule index selected when unique pattern i matches.
	winner []int
	// The matcher keeps per-call state internally, so Match is serialized.
	mu sync.Mutex
}

// NewEngine compiles rules into a matcher.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build compiles the rule table, replacing any previous one. Patterns are
// matched case-insensitively. A pattern repeated in the table resolves to
// its last occurrence.
func (e *Engine) Build(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = append([]Rule(nil), rules...)
	e.winner = nil
	e.matcher = nil

	patternToIndex := make(map[string]int, len(rules))
	var dictionary [][]byte

	for i, rule := range rules {
		clean := strings.ToUpper(strings.TrimSpace(rule.Pattern))
		if clean == "" {
			continue
		}
		if idx, exists := patternToIndex[clean]; exists {
			e.winner[idx] = i
			continue
		}
		patternToIndex[clean] = len(dictionary)
		dictionary = append(dictionary, []byte(clean))
		e.winner = append(e.winner, i)
	}

	if len(dictionary) > 0 {
		e.matcher = ahocorasick.NewMatcher(dictionary)
	}
}

// Match returns the last declared rule whose pattern occurs in text, or nil.
func (e *Engine) Match(text string) *MatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.match(text)
}

func (e *Engine) match(text string) *MatchResult {
	if e.matcher == nil {
		return nil
	}

	hits := e.matcher.Match([]byte(strings.ToUpper(text)))
	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.winner) {
			continue
		}
		if ruleIdx := e.winner[idx]; ruleIdx > best {
			best = ruleIdx
		}
	}
	if best < 0 {
		return nil
	}

	rule := e.rules[best]
	return &MatchResult{Pattern: rule.Pattern, Label: rule.Label, Index: best}
}

// MatchBatch matches many texts while holding the lock once.
func (e *Engine) MatchBatch(texts []string) []*MatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]*MatchResult, len(texts))
	for i, text := range texts {
		results[i] = e.match(text)
	}
	return results
}

// Label returns the label for text, or fallback when no rule matches.
func (e *Engine) Label(text, fallback string) string {
	if m := e.Match(text); m != nil {
		return m.Label
	}
	return fallback
}

// PatternCount returns the number of distinct patterns loaded.
func (e *Engine) PatternCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.winner)
}

// IsEmpty reports whether no patterns are loaded.
func (e *Engine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matcher == nil
}
