package services

import (
	"math"
	"regexp"
	"strings"

	"honeypot-lab/internal/domain/models"
)

// Scoring constants for the keyword classifier
const (
	keywordWeight        = 0.12
	keywordScoreCap      = 0.9
	financialBoost       = 0.2
	maxConfidence        = 0.95
	scamConfidenceCutoff = 0.15
	scamKeywordMinimum   = 2
)

var financialDigitsPattern = regexp.MustCompile(`\d{9,18}`)

// ScamClassifier scores a message by keyword hits and financial patterns.
// It is deterministic and makes no external calls.
type ScamClassifier struct {
	keywords *KeywordMatcher
}

// NewScamClassifier creates a classifier over the given keyword matcher
func NewScamClassifier(km *KeywordMatcher) *ScamClassifier {
	if km == nil {
		km = NewScamKeywordMatcher()
	}
	return &ScamClassifier{keywords: km}
}

// Classify returns the scam verdict and a confidence in [0, 0.95]
func (c *ScamClassifier) Classify(text string) models.Classification {
	found := c.keywords.Match(text)
	matches := len(found)

	confidence := math.Min(float64(matches)*keywordWeight, keywordScoreCap)
	if hasFinancialPattern(text) {
		confidence += financialBoost
	}
	confidence = math.Min(confidence, maxConfidence)
	// 0.12*n accumulates float error; keep two decimals like the reported score
	confidence = math.Round(confidence*100) / 100

	return models.Classification{
		IsScam:         confidence > scamConfidenceCutoff || matches >= scamKeywordMinimum,
		Confidence:     confidence,
		KeywordMatches: matches,
		Keywords:       found,
	}
}

func hasFinancialPattern(text string) bool {
	return financialDigitsPattern.MatchString(text) ||
		strings.Contains(text, "@") ||
		strings.Contains(strings.ToLower(text), "upi")
}
