package moderation

import (
	"strings"

	"github.com/edu-mentor-go/internal/models"
)

// Reading-level heuristics for a 12-year-old audience.
const (
	maxWords            = 80 // roughly 400 characters
	maxWordsPerSentence = 25
	maxComplexWordRatio = 0.10
	complexWordLength   = 13
)

// Topics with no place in any persona's domain for this audience.
var offDomainTopics = []string{
	"romance", "horror", "crypto", "stock market speculation", "conspiracy",
	"celebrity gossip", "surgery", "medication",
}

// AgeValidator applies a reading-level heuristic (sentence length,
// long-word density, overall length) and blocks topics outside the
// personas' declared domains.
type AgeValidator struct{}

func NewAgeValidator() *AgeValidator { return &AgeValidator{} }

func (v *AgeValidator) Name() string { return CategoryAge }

func (v *AgeValidator) Validate(text string, p *models.Persona) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Category: CategoryAge, Concern: "empty content"}
	}

	lower := strings.ToLower(text)
	for _, topic := range offDomainTopics {
		if strings.Contains(lower, topic) {
			return Result{Category: CategoryAge, Concern: "topic outside the persona's domain: " + topic}
		}
	}

	words := strings.Fields(text)
	if len(words) > maxWords {
		return Result{Category: CategoryAge, Concern: "too long for the target reading level"}
	}

	complex := 0
	for _, w := range words {
		if len(strings.Trim(w, ".,!?;:'\"()")) >= complexWordLength {
			complex++
		}
	}
	if len(words) > 0 && float64(complex)/float64(len(words)) > maxComplexWordRatio {
		return Result{Category: CategoryAge, Concern: "vocabulary too complex for a 12-year-old"}
	}

	if longest := longestSentence(text); longest > maxWordsPerSentence {
		return Result{Category: CategoryAge, Concern: "sentences too long for the target reading level"}
	}

	res := Result{Category: CategoryAge, Passed: true, Score: 1.0}
	// Near-limit texts pass with reduced certainty
	if len(words) > maxWords*3/4 || complex > 0 {
		res.Score = 0.85
	}
	return res
}

func longestSentence(text string) int {
	longest, count := 0, 0
	for _, w := range strings.Fields(text) {
		count++
		if strings.ContainsAny(w, ".!?") {
			if count > longest {
				longest = count
			}
			count = 0
		}
	}
	if count > longest {
		longest = count
	}
	return longest
}
