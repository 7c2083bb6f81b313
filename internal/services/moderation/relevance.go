package moderation

import (
	"strings"

	"github.com/edu-mentor-go/internal/models"
)

// Subject-matter keywords accepted for any persona.
var educationalKeywords = []string{
	// Geography
	"country", "continent", "capital", "geography", "map", "location", "region", "territory", "world",
	// Economics
	"economy", "economics", "money", "income", "business", "trade", "resources", "gdp", "economic",
	// Languages and culture
	"language", "culture", "communication", "pronunciation", "speaking", "cultural", "tradition",
	// Learning and growth
	"learn", "learning", "education", "knowledge", "skill", "practice", "improve", "growth", "development",
	// Careers
	"job", "career", "work", "profession",
}

// Score when no subject keyword was found; low relevance is flagged, not
// hard-rejected.
const lowRelevanceScore = 0.5

// RelevanceValidator requires a reply to reference at least one concept
// from the persona's subject-matter keyword set. A miss lowers the
// confidence score and records a concern but never fails the category.
type RelevanceValidator struct{}

func NewRelevanceValidator() *RelevanceValidator { return &RelevanceValidator{} }

func (v *RelevanceValidator) Name() string { return CategoryEducational }

func (v *RelevanceValidator) Validate(text string, p *models.Persona) Result {
	lower := strings.ToLower(text)

	if p != nil {
		for _, kw := range p.SubjectKeywords {
			if strings.Contains(lower, kw) {
				return Result{Category: CategoryEducational, Passed: true, Score: 1.0}
			}
		}
	}
	for _, kw := range educationalKeywords {
		if strings.Contains(lower, kw) {
			return Result{Category: CategoryEducational, Passed: true, Score: 1.0}
		}
	}

	return Result{
		Category: CategoryEducational,
		Passed:   true,
		Score:    lowRelevanceScore,
		Concern:  "low educational relevance",
	}
}
