package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/generation"
	"github.com/edu-mentor-go/pkg/textutil"
	"github.com/sirupsen/logrus"
)

// Orchestrator builds persona prompts and drives the generation backend.
type Orchestrator struct {
	backend generation.Backend
	cfgFn   func() *config.GenerationConfig
	logger  *logrus.Logger
}

// NewOrchestrator creates an orchestrator over the given backend.
func NewOrchestrator(backend generation.Backend, cfgFn func() *config.GenerationConfig, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		cfgFn:   cfgFn,
		logger:  logger,
	}
}

// GenerateOutcome reports whether the backend call was actually sent.
// A call that was sent consumed quota even if it later failed.
type GenerateOutcome struct {
	Reply    string
	Invoked  bool
	Attempts int
}

// Generate produces a draft reply for the persona. Transient backend
// failures are retried up to the configured budget; permanent failures,
// empty replies and exhausted retries surface as errors so the pipeline
// falls back. The reply is flattened and length-capped, ready for
// moderation.
func (o *Orchestrator) Generate(ctx context.Context, p *models.Persona, req *models.InteractionRequest) (GenerateOutcome, error) {
	cfg := o.cfgFn()
	outcome := GenerateOutcome{}

	input := strings.TrimSpace(req.InputText)
	if input == "" {
		return outcome, fmt.Errorf("%w: empty player input", generation.ErrPermanent)
	}
	input = textutil.CapLength(input, cfg.MaxInputChars)

	prompt := buildPrompt(p, input, req.GameContext)

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			o.logger.WithFields(logrus.Fields{
				"persona": p.ID,
				"attempt": attempt + 1,
			}).Warn("Retrying generation after transient failure")

			select {
			case <-ctx.Done():
				return outcome, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		outcome.Invoked = true
		outcome.Attempts = attempt + 1

		reply, err := o.backend.Complete(ctx, prompt, cfg.MaxTokens)
		if err == nil {
			reply = textutil.FlattenMarkdown(reply)
			reply = textutil.CapLength(reply, cfg.MaxReplyChars)
			if strings.TrimSpace(reply) == "" {
				return outcome, fmt.Errorf("%w: blank reply after post-processing", generation.ErrPermanent)
			}
			outcome.Reply = reply
			return outcome, nil
		}

		lastErr = err
		if !generation.IsTransient(err) {
			break
		}
	}

	return outcome, fmt.Errorf("generation failed after %d attempt(s): %w", outcome.Attempts, lastErr)
}

// buildPrompt combines the persona template, the trimmed player input and
// the free-form game context.
func buildPrompt(p *models.Persona, input, gameContext string) string {
	var b strings.Builder
	b.WriteString(p.PromptTemplate)
	if gameContext = strings.TrimSpace(gameContext); gameContext != "" {
		b.WriteString("\n\nCurrent game situation: ")
		b.WriteString(gameContext)
	}
	b.WriteString("\n\nThe player says: ")
	b.WriteString(input)
	return b.String()
}
