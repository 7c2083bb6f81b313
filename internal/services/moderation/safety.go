package moderation

import (
	"regexp"
	"strings"

	"github.com/edu-mentor-go/internal/models"
)

// Content that must never reach a child, regardless of persona.
var prohibitedTerms = []string{
	// Violence and conflict
	"violence", "fight", "war", "battle", "attack", "weapon", "gun", "knife",
	"bomb", "kill", "death", "die", "hurt", "blood",
	// Frightening content
	"scary", "frightening", "terrifying", "nightmare", "monster", "ghost", "demon",
	// Demeaning language
	"hate", "stupid", "dumb", "idiot", "loser", "worthless",
	// Off-limits topics for the game's audience
	"gambling", "alcohol", "drugs", "dating", "politics", "political",
}

// Discouraging phrasing; an educational mentor never tells a child they
// will fail.
var negativeTerms = []string{
	"failure", "impossible", "never", "can't do", "hopeless", "give up",
}

// Personal-data disclosure patterns
var (
	phonePattern   = regexp.MustCompile(`\b(?:\+?\d{1,3}[-.\s]?)?(?:\(?\d{3,5}\)?[-.\s]?)\d{3,4}[-.\s]?\d{3,4}\b`)
	emailPattern   = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	addressPattern = regexp.MustCompile(`(?i)\b\d+\s+[a-z]+\s+(street|st|road|rd|avenue|ave|lane|ln|drive|dr|close|crescent|way)\b`)
)

// SafetyValidator rejects profanity, violence, personal-data disclosure
// and discouraging language. It carries the highest confidence weight and
// a failure alone forces rejection.
type SafetyValidator struct{}

func NewSafetyValidator() *SafetyValidator { return &SafetyValidator{} }

func (v *SafetyValidator) Name() string { return CategorySafety }

func (v *SafetyValidator) Validate(text string, _ *models.Persona) Result {
	res := Result{Category: CategorySafety, Passed: true, Score: 1.0}

	if strings.TrimSpace(text) == "" {
		return Result{Category: CategorySafety, Concern: "empty content"}
	}

	lower := strings.ToLower(text)

	for _, term := range prohibitedTerms {
		if containsWord(lower, term) {
			return Result{Category: CategorySafety, Concern: "contains prohibited content: " + term}
		}
	}

	for _, term := range negativeTerms {
		if strings.Contains(lower, term) {
			return Result{Category: CategorySafety, Concern: "contains discouraging language: " + term}
		}
	}

	if phonePattern.MatchString(text) {
		return Result{Category: CategorySafety, Concern: "contains a phone number pattern"}
	}
	if emailPattern.MatchString(text) {
		return Result{Category: CategorySafety, Concern: "contains an email address"}
	}
	if addressPattern.MatchString(text) {
		return Result{Category: CategorySafety, Concern: "contains a street address pattern"}
	}

	return res
}

// containsWord matches term on word boundaries so "warsaw" does not trip
// the "war" filter.
func containsWord(lower, term string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isLetter(lower[start-1])
		afterOK := end == len(lower) || !isLetter(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
