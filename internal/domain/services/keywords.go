package services

import (
	"sort"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// ScamKeywords is the fixed list of words that mark a message as suspicious
var ScamKeywords = []string{
	"winner", "prize", "lottery", "suspended", "blocked", "verify", "urgent",
	"transfer", "account", "bank", "upi", "payment", "fee", "money", "otp",
	"immediately", "expire",
}

// KeywordMatcher finds dictionary words inside text in a single pass.
// Matching is substring-based on lowercased text, so "accounts" matches "account".
type KeywordMatcher struct {
	// ahocorasick.Matcher keeps per-call state and is not safe for concurrent use
	mu       sync.Mutex
	matcher  *ahocorasick.Matcher
	keywords []string
}

// NewKeywordMatcher builds the automaton for the given keywords
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	seen := make(map[string]bool, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		normalized = append(normalized, kw)
	}

	km := &KeywordMatcher{keywords: normalized}
	if len(normalized) > 0 {
		km.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return km
}

// NewScamKeywordMatcher returns a matcher over ScamKeywords
func NewScamKeywordMatcher() *KeywordMatcher {
	return NewKeywordMatcher(ScamKeywords)
}

// Match returns the distinct keywords present in text, in dictionary order
func (km *KeywordMatcher) Match(text string) []string {
	if km.matcher == nil || text == "" {
		return []string{}
	}

	lower := strings.ToLower(text)

	km.mu.Lock()
	hits := km.matcher.Match([]byte(lower))
	km.mu.Unlock()

	sort.Ints(hits)
	found := make([]string, 0, len(hits))
	last := -1
	for _, idx := range hits {
		if idx == last || idx < 0 || idx >= len(km.keywords) {
			continue
		}
		last = idx
		found = append(found, km.keywords[idx])
	}
	return found
}

// Count returns the number of distinct keywords present in text
func (km *KeywordMatcher) Count(text string) int {
	return len(km.Match(text))
}

// Keywords returns the normalized dictionary
func (km *KeywordMatcher) Keywords() []string {
	out := make([]string, len(km.keywords))
	copy(out, km.keywords)
	return out
}

// containsAny reports whether lower contains any of words
func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
