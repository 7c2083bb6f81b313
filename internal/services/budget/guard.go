package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/ledger"
	"github.com/sirupsen/logrus"
)

// Longest throttle delay suggested to callers.
const maxRetryDelay = 5 * time.Minute

// Guard wraps the cost ledger with admission control and budget alerts.
//
// With emergency throttling enabled, Admit atomically reserves the
// estimated per-call cost, so concurrent requests from one user cannot
// jointly overshoot the daily limit. The pipeline settles every
// reservation through RecordCost or ReleaseReservation.
type Guard struct {
	ledger  *ledger.Ledger
	cfgFn   func() *config.Config
	emitter *Emitter
	logger  *logrus.Logger
}

// NewGuard creates a budget guard over the ledger.
func NewGuard(l *ledger.Ledger, cfgFn func() *config.Config, emitter *Emitter, logger *logrus.Logger) *Guard {
	return &Guard{ledger: l, cfgFn: cfgFn, emitter: emitter, logger: logger}
}

// EstimatedCallCost is the configured per-generation-call charge.
func (g *Guard) EstimatedCallCost() models.Amount {
	return models.AmountFromPounds(g.cfgFn().Generation.CostPerCallGBP)
}

// Limit is the configured daily spending ceiling.
func (g *Guard) Limit() models.Amount {
	return models.AmountFromPounds(g.cfgFn().Budget.DailyLimitGBP)
}

// Admit decides whether one costed call may run for the user.
//
// Below the alert threshold the call is admitted silently; between
// threshold and limit it is admitted with a Warning alert; at or over the
// limit it is denied when emergency throttling is enabled, otherwise
// admitted with a LimitExceeded alert. Denial happens before the
// generation backend is ever invoked.
func (g *Guard) Admit(ctx context.Context, userID string) (*models.AdmissionDecision, error) {
	cfg := g.cfgFn()
	limit := models.AmountFromPounds(cfg.Budget.DailyLimitGBP)
	alertAt := models.Amount(float64(limit) * cfg.Budget.AlertThresholdPct)
	estimate := g.EstimatedCallCost()

	if !cfg.Budget.EmergencyThrottlingEnabled {
		total, err := g.ledger.DailyTotal(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("admission read failed: %w", err)
		}
		decision := &models.AdmissionDecision{
			Allowed:     true,
			Reason:      "throttling disabled",
			CurrentCost: total,
			Limit:       limit,
		}
		g.alertFor(userID, total, alertAt, limit, false)
		return decision, nil
	}

	total, ok, err := g.ledger.Reserve(ctx, userID, estimate, limit)
	if err != nil {
		return nil, fmt.Errorf("admission reserve failed: %w", err)
	}

	if !ok {
		excess := total + estimate - limit
		retry := time.Duration(excess.Pounds()*1000) * time.Second
		if retry > maxRetryDelay {
			retry = maxRetryDelay
		}
		if retry < time.Second {
			retry = time.Second
		}

		g.emit(models.BudgetAlert{
			UserID:         userID,
			Type:           models.AlertEmergencyThrottle,
			CurrentCost:    total,
			Limit:          limit,
			Message:        fmt.Sprintf("daily limit of £%.4f reached, throttling user", limit.Pounds()),
			SuppressionKey: fmt.Sprintf("%s:%s", userID, models.AlertEmergencyThrottle),
			Timestamp:      time.Now(),
		})

		g.logger.WithFields(logrus.Fields{
			"user_id":     userID,
			"current_gbp": total.Pounds(),
			"limit_gbp":   limit.Pounds(),
		}).Info("Admission denied, daily budget exhausted")

		return &models.AdmissionDecision{
			Allowed:     false,
			Reason:      "daily budget limit reached",
			CurrentCost: total,
			Limit:       limit,
			RetryAfter:  retry,
		}, nil
	}

	decision := &models.AdmissionDecision{
		Allowed:     true,
		Reason:      "within budget",
		CurrentCost: total,
		Limit:       limit,
		Reserved:    estimate,
	}
	g.alertFor(userID, total, alertAt, limit, true)
	return decision, nil
}

// alertFor emits the threshold alert matching the current total.
func (g *Guard) alertFor(userID string, total, alertAt, limit models.Amount, throttling bool) {
	switch {
	case total >= limit && !throttling:
		g.emit(models.BudgetAlert{
			UserID:         userID,
			Type:           models.AlertLimitExceeded,
			CurrentCost:    total,
			Limit:          limit,
			Message:        fmt.Sprintf("daily limit of £%.4f exceeded (throttling disabled)", limit.Pounds()),
			SuppressionKey: fmt.Sprintf("%s:%s", userID, models.AlertLimitExceeded),
			Timestamp:      time.Now(),
		})
	case total >= alertAt:
		pct := float64(total) / float64(limit) * 100
		g.emit(models.BudgetAlert{
			UserID:         userID,
			Type:           models.AlertWarning,
			CurrentCost:    total,
			Limit:          limit,
			Message:        fmt.Sprintf("daily spend at %.0f%% of the £%.4f limit", pct, limit.Pounds()),
			SuppressionKey: fmt.Sprintf("%s:%s", userID, models.AlertWarning),
			Timestamp:      time.Now(),
		})
	}
}

func (g *Guard) emit(alert models.BudgetAlert) {
	g.emitter.Emit(alert, g.cfgFn().Budget.MinAlertInterval)
}

// RecordCost settles a completed billable call: the counter is adjusted
// by whatever the reservation did not already cover and an append-only
// record is written. Safe for concurrent calls for the same user.
func (g *Guard) RecordCost(ctx context.Context, userID, serviceType string, amount, reserved models.Amount) (*models.DailyCostSummary, error) {
	switch {
	case amount > reserved:
		if _, err := g.ledger.Add(ctx, userID, amount-reserved); err != nil {
			return nil, fmt.Errorf("cost increment failed: %w", err)
		}
	case amount < reserved:
		if err := g.ledger.Release(ctx, userID, reserved-amount); err != nil {
			return nil, fmt.Errorf("reservation adjustment failed: %w", err)
		}
	}

	if err := g.ledger.AppendRecord(ctx, userID, serviceType, amount); err != nil {
		return nil, fmt.Errorf("cost record append failed: %w", err)
	}

	return g.ledger.Summary(ctx, userID, g.Limit())
}

// ReleaseReservation refunds an admission reservation whose backend call
// never completed; no cost record is written.
func (g *Guard) ReleaseReservation(ctx context.Context, userID string, reserved models.Amount) error {
	if reserved <= 0 {
		return nil
	}
	return g.ledger.Release(ctx, userID, reserved)
}

// Summary exposes the user's current daily cost summary.
func (g *Guard) Summary(ctx context.Context, userID string) (*models.DailyCostSummary, error) {
	return g.ledger.Summary(ctx, userID, g.Limit())
}
