package services

import (
	"regexp"
	"sort"
	"strings"

	"honeypot-lab/internal/domain/models"
)

var (
	// Digit runs long enough to be an Indian bank account number
	bankAccountPattern = regexp.MustCompile(`\b\d{9,18}\b`)

	// name@provider, permissive on both sides
	upiPattern = regexp.MustCompile(`\b[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\b`)

	urlPattern = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)

	// Optional +91 / 91 country prefix, then ten digits
	phonePattern = regexp.MustCompile(`\+?91[-\s]?\d{10}|\b\d{10}\b`)

	// 500 rupees, 500 rs, 500₹, Rs. 500, ₹500
	amountPattern = regexp.MustCompile(`(?i)\b\d+\s*(?:rupees?\b|rs\b\.?|₹)|(?:₹|\brs\.?)\s*\d+\b`)
)

// IntelligenceExtractor pulls payment identifiers, links and phone numbers out of text.
// Matches are heuristics; long non-financial numbers are reported too.
type IntelligenceExtractor struct {
	keywords *KeywordMatcher
}

// NewIntelligenceExtractor creates an extractor that reports keywords from km
func NewIntelligenceExtractor(km *KeywordMatcher) *IntelligenceExtractor {
	if km == nil {
		km = NewScamKeywordMatcher()
	}
	return &IntelligenceExtractor{keywords: km}
}

// Extract scans text and returns deduplicated, sorted matches
func (e *IntelligenceExtractor) Extract(text string) models.ExtractedIntelligence {
	return models.ExtractedIntelligence{
		BankAccounts:       uniqueSorted(bankAccountPattern.FindAllString(text, -1)),
		UPIIDs:             uniqueSorted(upiPattern.FindAllString(text, -1)),
		URLs:               uniqueSorted(urlPattern.FindAllString(text, -1)),
		PhoneNumbers:       uniqueSorted(phonePattern.FindAllString(text, -1)),
		SuspiciousKeywords: e.keywords.Match(text),
	}
}

// ExtractAll runs Extract over the concatenation of texts
func (e *IntelligenceExtractor) ExtractAll(texts []string) models.ExtractedIntelligence {
	return e.Extract(strings.Join(texts, " "))
}

// FindAmounts returns every money amount mentioned in text, in order of appearance
func FindAmounts(text string) []string {
	matches := amountPattern.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.TrimSpace(m)
	}
	return matches
}

// FindBankAccounts returns bank-account-like numbers in order of appearance
func FindBankAccounts(text string) []string {
	return bankAccountPattern.FindAllString(text, -1)
}

// FindUPIIDs returns UPI-like identifiers in order of appearance
func FindUPIIDs(text string) []string {
	return upiPattern.FindAllString(text, -1)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
