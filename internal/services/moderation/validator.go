package moderation

import (
	"github.com/edu-mentor-go/internal/models"
)

// Validator categories
const (
	CategorySafety      = "safety"
	CategoryAge         = "age-appropriateness"
	CategoryEducational = "educational-relevance"
)

// Result is one validator's judgement of a text blob.
type Result struct {
	Category string
	Passed   bool
	// Score in [0,1]; feeds the gate's weighted confidence
	Score   float64
	Concern string
}

// Validator is a side-effect-free predicate/scorer over a text blob.
// The persona supplies topic domain and subject keywords; it may be nil
// for persona-agnostic checks (e.g. the client pre-check endpoint).
//
// Pattern-matching heuristics live behind this interface so an ML-backed
// validator can replace one without touching the gate or pipeline.
type Validator interface {
	Name() string
	Validate(text string, p *models.Persona) Result
}
