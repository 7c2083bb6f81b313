package moderation

import (
	"context"
	"sort"
	"strings"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Gate runs all validators concurrently and aggregates their results
// into one ModerationVerdict. Validators are independent and
// side-effect-free, so the fan-out needs no coordination beyond the
// wall-clock budget.
type Gate struct {
	validators []Validator
	cfgFn      func() *config.ModerationConfig
	logger     *logrus.Logger
}

// NewGate wires the standard three validators.
func NewGate(cfgFn func() *config.ModerationConfig, logger *logrus.Logger) *Gate {
	return &Gate{
		validators: []Validator{
			NewSafetyValidator(),
			NewAgeValidator(),
			NewRelevanceValidator(),
		},
		cfgFn:  cfgFn,
		logger: logger,
	}
}

// Validate moderates text against the persona's domain. The whole pass is
// bounded by the configured moderation budget; on timeout the verdict is
// a rejection, never an error.
func (g *Gate) Validate(ctx context.Context, text string, p *models.Persona) models.ModerationVerdict {
	cfg := g.cfgFn()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	results := make(chan Result, len(g.validators))
	for _, v := range g.validators {
		v := v
		go func() {
			defer func() {
				if r := recover(); r != nil {
					g.logger.WithFields(logrus.Fields{
						"validator": v.Name(),
						"panic":     r,
					}).Error("Validator panicked, treating as rejection")
					results <- Result{Category: v.Name(), Concern: "validator failure"}
				}
			}()
			results <- v.Validate(text, p)
		}()
	}

	byCategory := make(map[string]Result, len(g.validators))
	for range g.validators {
		select {
		case res := <-results:
			byCategory[res.Category] = res
		case <-ctx.Done():
			g.logger.WithField("text_len", len(text)).Warn("Moderation budget exhausted")
			return models.ModerationVerdict{
				Concerns: []string{"moderation timed out"},
			}
		}
	}

	safety := byCategory[CategorySafety]
	age := byCategory[CategoryAge]
	edu := byCategory[CategoryEducational]

	// Safety dominates the weighted score, so a strong safety violation
	// forces rejection even when the other validators pass.
	totalWeight := cfg.SafetyWeight + cfg.AgeWeight + cfg.EducationalWeight
	confidence := (cfg.SafetyWeight*safety.Score +
		cfg.AgeWeight*age.Score +
		cfg.EducationalWeight*edu.Score) / totalWeight

	var concerns []string
	for _, res := range []Result{safety, age, edu} {
		if res.Concern != "" {
			concerns = append(concerns, res.Concern)
		}
	}
	sort.Strings(concerns)

	verdict := models.ModerationVerdict{
		Safe:           safety.Passed,
		AgeAppropriate: age.Passed,
		Educational:    edu.Passed,
		Confidence:     confidence,
		Concerns:       concerns,
	}
	verdict.Approved = verdict.Safe && verdict.AgeAppropriate && verdict.Educational &&
		verdict.Confidence >= cfg.ConfidenceThreshold

	if !verdict.Approved {
		g.logger.WithFields(logrus.Fields{
			"confidence": verdict.Confidence,
			"concerns":   strings.Join(concerns, "; "),
		}).Info("Content rejected by moderation gate")
	}

	return verdict
}

// Check adapts Validate for the fallback catalogue's load-time self-check.
func (g *Gate) Check(text string, p *models.Persona) (bool, []string) {
	verdict := g.Validate(context.Background(), text, p)
	return verdict.Approved, verdict.Concerns
}
