package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/edu-mentor-go/internal/i18n"
	"github.com/edu-mentor-go/internal/middleware"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/audit"
	"github.com/edu-mentor-go/internal/services/budget"
	"github.com/edu-mentor-go/internal/services/generation"
	"github.com/edu-mentor-go/internal/services/moderation"
	"github.com/edu-mentor-go/internal/services/persona"
	"github.com/edu-mentor-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Pipeline composes budget guard, orchestrator, moderation gate and
// fallback catalogue into one request/response cycle.
//
// Its contract to the caller is absolute: every run yields a well-formed
// InteractionResult and no failure mode surfaces technical detail to the
// child. Unexpected internal errors become fallback replies plus an
// audit entry.
type Pipeline struct {
	orchestrator *persona.Orchestrator
	gate         *moderation.Gate
	catalogue    *persona.Catalogue
	guard        *budget.Guard
	recorder     *audit.Recorder
	localizer    *i18n.Localizer
	metrics      *middleware.Metrics
	logger       *logrus.Logger
}

// New wires the pipeline.
func New(
	orchestrator *persona.Orchestrator,
	gate *moderation.Gate,
	catalogue *persona.Catalogue,
	guard *budget.Guard,
	recorder *audit.Recorder,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		orchestrator: orchestrator,
		gate:         gate,
		catalogue:    catalogue,
		guard:        guard,
		recorder:     recorder,
		localizer:    localizer,
		metrics:      metrics,
		logger:       logger,
	}
}

// Process runs one interaction. The persona has already been resolved by
// the caller; everything past that point is the pipeline's problem.
func (p *Pipeline) Process(ctx context.Context, per *models.Persona, req *models.InteractionRequest) (result *models.InteractionResult) {
	started := time.Now()
	outcome := "approved"
	var decision *models.AdmissionDecision

	defer func() {
		// The recover boundary: a panic anywhere below becomes a fallback
		// reply, never an error screen for a child.
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"user_id": req.UserID,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("Pipeline panic recovered")
			if decision != nil && decision.Allowed {
				if err := p.guard.ReleaseReservation(ctx, req.UserID, decision.Reserved); err != nil {
					p.logger.WithError(err).WithField("user_id", req.UserID).Error("Reservation release failed")
				}
			}
			result = p.fallback(per, req, models.ReasonInternal, fmt.Sprintf("panic: %v", r))
			outcome = models.ReasonInternal
		}
		p.metrics.RecordInteraction(per.ID, outcome, time.Since(started))
	}()

	// Stage 1: admission control. On denial the orchestrator is never
	// invoked; this is a short-circuit, not a post-hoc check.
	decision, err := p.guard.Admit(ctx, req.UserID)
	if err != nil {
		outcome = models.ReasonInternal
		perr := models.NewPipelineError(models.ErrInternal, err)
		return p.fallback(per, req, models.ReasonInternal, "admission check failed: "+perr.Error())
	}
	if !decision.Allowed {
		p.metrics.RecordBudgetDenial()
		outcome = models.ReasonBudget
		return p.budgetFallback(per, req, decision)
	}

	// Stage 2: generation.
	genStart := time.Now()
	gen, err := p.orchestrator.Generate(ctx, per, req)
	if err != nil {
		p.metrics.RecordGeneration("error", time.Since(genStart))
		if gen.Attempts > 1 {
			p.metrics.RecordGenerationRetry()
		}

		p.settleFailedGeneration(ctx, req.UserID, decision, gen, err)
		decision = nil
		outcome = models.ReasonGenerationError
		perr := models.NewPipelineError(classifyGenError(err), err)
		return p.fallback(per, req, models.ReasonGenerationError, perr.Error())
	}
	p.metrics.RecordGeneration("success", time.Since(genStart))

	// Stage 3: moderation. The generation cost was incurred either way,
	// so a rejected draft is still billed.
	verdict := p.gate.Validate(ctx, gen.Reply, per)
	if !verdict.Approved {
		for _, category := range rejectedCategories(verdict) {
			p.metrics.RecordModerationRejection(category)
		}
		if _, err := p.recordCost(ctx, req.UserID, decision); err != nil {
			p.logger.WithError(err).WithField("user_id", req.UserID).Error("Cost record failed after moderation rejection")
		}
		decision = nil

		p.recorder.Record(models.AuditEvent{
			UserID:    req.UserID,
			PersonaID: per.ID,
			Kind:      models.ReasonModeration,
			Detail:    fmt.Sprintf("%s: draft rejected, confidence %.2f", models.ErrContentRejected, verdict.Confidence),
			Concerns:  verdict.Concerns,
		})

		outcome = models.ReasonModeration
		return p.fallbackNoAudit(per, req, models.ReasonModeration)
	}

	// Stage 4: settle cost and return the approved reply.
	_, recordErr := p.recordCost(ctx, req.UserID, decision)
	decision = nil
	if recordErr != nil {
		outcome = models.ReasonInternal
		return p.fallback(per, req, models.ReasonInternal, "cost record failed: "+recordErr.Error())
	}

	p.recorder.Record(models.AuditEvent{
		UserID:    req.UserID,
		PersonaID: per.ID,
		Kind:      "approved",
		Detail:    fmt.Sprintf("reply approved, confidence %.2f", verdict.Confidence),
	})

	return &models.InteractionResult{
		PersonaID:     per.ID,
		Reply:         gen.Reply,
		IsAppropriate: true,
		UsedFallback:  false,
		Timestamp:     time.Now(),
	}
}

// classifyGenError maps a generation failure onto the pipeline's error
// taxonomy for the audit trail.
func classifyGenError(err error) models.ErrKind {
	if generation.IsTransient(err) {
		return models.ErrTransientBackend
	}
	return models.ErrInternal
}

// rejectedCategories names the validator categories that failed, or
// "confidence" when every flag passed but the weighted score fell short.
func rejectedCategories(v models.ModerationVerdict) []string {
	var out []string
	if !v.Safe {
		out = append(out, moderation.CategorySafety)
	}
	if !v.AgeAppropriate {
		out = append(out, moderation.CategoryAge)
	}
	if !v.Educational {
		out = append(out, moderation.CategoryEducational)
	}
	if len(out) == 0 {
		out = append(out, "confidence")
	}
	return out
}

// settleFailedGeneration applies partial-failure billing: a call the
// backend actually processed consumed quota even though it failed, while
// a call that never completed (network failure, timeout) is refunded.
func (p *Pipeline) settleFailedGeneration(ctx context.Context, userID string, decision *models.AdmissionDecision, gen persona.GenerateOutcome, genErr error) {
	completed := gen.Invoked && !generation.IsTransient(genErr)

	if completed {
		if _, err := p.recordCost(ctx, userID, decision); err != nil {
			p.logger.WithError(err).WithField("user_id", userID).Error("Cost record failed after generation error")
		}
		return
	}

	if err := p.guard.ReleaseReservation(ctx, userID, decision.Reserved); err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Error("Reservation release failed")
	}
}

func (p *Pipeline) recordCost(ctx context.Context, userID string, decision *models.AdmissionDecision) (*models.DailyCostSummary, error) {
	sum, err := p.guard.RecordCost(ctx, userID, models.ServiceGeneration, p.guard.EstimatedCallCost(), decision.Reserved)
	if err == nil {
		p.metrics.RecordDailySpend(sum.TotalCost.Pounds())
	}
	return sum, err
}

// fallback returns a catalogue reply and records the audit trail.
// ContentRejected and BudgetExceeded are expected outcomes logged at
// informational severity; internal faults were already logged higher up.
func (p *Pipeline) fallback(per *models.Persona, req *models.InteractionRequest, reason, detail string) *models.InteractionResult {
	p.recorder.Record(models.AuditEvent{
		UserID:    req.UserID,
		PersonaID: per.ID,
		Kind:      reason,
		Detail:    detail,
	})
	return p.fallbackNoAudit(per, req, reason)
}

func (p *Pipeline) fallbackNoAudit(per *models.Persona, req *models.InteractionRequest, reason string) *models.InteractionResult {
	p.metrics.RecordFallback(reason)
	logger.WithInteraction(p.logger, req.UserID, per.ID).
		WithField("reason", reason).Info("Serving fallback reply")

	reply := p.catalogue.Select(per, reason+":"+req.InputText)

	return &models.InteractionResult{
		PersonaID:     per.ID,
		Reply:         reply,
		IsAppropriate: true,
		UsedFallback:  true,
		Timestamp:     time.Now(),
	}
}

// budgetFallback serves the friendly localized break message ahead of a
// persona fallback; a child never sees a raw denial.
func (p *Pipeline) budgetFallback(per *models.Persona, req *models.InteractionRequest, decision *models.AdmissionDecision) *models.InteractionResult {
	p.recorder.Record(models.AuditEvent{
		UserID:    req.UserID,
		PersonaID: per.ID,
		Kind:      models.ReasonBudget,
		Detail: fmt.Sprintf("%s: denied at £%.4f of £%.4f",
			models.ErrBudgetExceeded, decision.CurrentCost.Pounds(), decision.Limit.Pounds()),
	})
	p.metrics.RecordFallback(models.ReasonBudget)

	breakMsg := p.localizer.Default(i18n.MsgBudgetBreak, nil)
	reply := p.catalogue.Select(per, models.ReasonBudget+":"+req.InputText)
	if breakMsg != i18n.MsgBudgetBreak {
		reply = strings.TrimSpace(breakMsg + " " + reply)
	}

	return &models.InteractionResult{
		PersonaID:     per.ID,
		Reply:         reply,
		IsAppropriate: true,
		UsedFallback:  true,
		Timestamp:     time.Now(),
	}
}
