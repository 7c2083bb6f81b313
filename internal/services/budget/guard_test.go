package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/ledger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []models.BudgetAlert
}

func (r *alertRecorder) Emit(alert models.BudgetAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func (r *alertRecorder) byType(t models.AlertType) []models.BudgetAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BudgetAlert
	for _, a := range r.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func testBudgetConfig() *config.Config {
	return &config.Config{
		Budget: config.BudgetConfig{
			DailyLimitGBP:              0.08,
			AlertThresholdPct:          0.80,
			EmergencyThrottlingEnabled: true,
			MinAlertInterval:           15 * time.Minute,
			TimeZone:                   "UTC",
		},
		Generation: config.GenerationConfig{
			CostPerCallGBP: 0.01,
		},
	}
}

func testGuard(t *testing.T, cfg *config.Config) (*Guard, *alertRecorder) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := ledger.NewMemoryStore(&config.MemoryConfig{
		DefaultExpiration: time.Hour,
		CleanupInterval:   time.Hour,
	}, log)
	l := ledger.NewLedgerWithStore(store, time.UTC, log)

	rec := &alertRecorder{}
	emitter := NewEmitter(NewCacheSuppressor(), rec)
	return NewGuard(l, func() *config.Config { return cfg }, emitter, log), rec
}

func TestAdmitWithinBudget(t *testing.T) {
	guard, rec := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	decision, err := guard.Admit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.Amount(10000), decision.Reserved)
	assert.Empty(t, rec.alerts)
}

func TestAdmitDeniesAtLimit(t *testing.T) {
	guard, rec := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	// Eight calls at £0.01 exhaust the £0.08 limit
	for i := 0; i < 8; i++ {
		decision, err := guard.Admit(ctx, "u1")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "call %d should be admitted", i+1)
	}

	decision, err := guard.Admit(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily budget limit reached", decision.Reason)
	assert.GreaterOrEqual(t, decision.RetryAfter, time.Second)
	assert.LessOrEqual(t, decision.RetryAfter, 5*time.Minute)
	assert.Len(t, rec.byType(models.AlertEmergencyThrottle), 1)
}

func TestAdmitConcurrentNeverOvershoots(t *testing.T) {
	guard, _ := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := guard.Admit(ctx, "u1")
			assert.NoError(t, err)
			if decision.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, admitted)
}

func TestAdmitUsersAreIndependent(t *testing.T) {
	guard, _ := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := guard.Admit(ctx, "heavy-user")
		require.NoError(t, err)
	}
	denied, err := guard.Admit(ctx, "heavy-user")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	other, err := guard.Admit(ctx, "light-user")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestAdmitWarningAtThreshold(t *testing.T) {
	guard, rec := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	// Calls 1-6 stay under 80% of the limit; calls 7 and 8 cross it, but
	// suppression lets only the first warning through.
	for i := 0; i < 8; i++ {
		decision, err := guard.Admit(ctx, "u1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	warnings := rec.byType(models.AlertWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "u1", warnings[0].UserID)
	assert.Contains(t, warnings[0].Message, "%")
}

func TestAdmitThrottlingDisabled(t *testing.T) {
	cfg := testBudgetConfig()
	cfg.Budget.EmergencyThrottlingEnabled = false
	guard, rec := testGuard(t, cfg)
	ctx := context.Background()

	// Drive the total past the limit; nothing is denied but a
	// LimitExceeded alert fires once.
	for i := 0; i < 12; i++ {
		decision, err := guard.Admit(ctx, "u1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		assert.Zero(t, decision.Reserved)

		_, err = guard.RecordCost(ctx, "u1", models.ServiceGeneration, guard.EstimatedCallCost(), decision.Reserved)
		require.NoError(t, err)
	}

	assert.Len(t, rec.byType(models.AlertLimitExceeded), 1)
}

func TestRecordCostSettlesReservation(t *testing.T) {
	guard, _ := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	decision, err := guard.Admit(ctx, "u1")
	require.NoError(t, err)

	sum, err := guard.RecordCost(ctx, "u1", models.ServiceGeneration, guard.EstimatedCallCost(), decision.Reserved)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(10000), sum.TotalCost)
	assert.Equal(t, 1, sum.ServiceCosts[models.ServiceGeneration].Calls)
}

func TestRecordCostAdjustsDelta(t *testing.T) {
	guard, _ := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	decision, err := guard.Admit(ctx, "u1")
	require.NoError(t, err)

	// Actual cost below the reservation: the difference is refunded
	sum, err := guard.RecordCost(ctx, "u1", models.ServiceGeneration, 4000, decision.Reserved)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(4000), sum.TotalCost)

	decision, err = guard.Admit(ctx, "u1")
	require.NoError(t, err)

	// Actual cost above the reservation: the difference is added
	sum, err = guard.RecordCost(ctx, "u1", models.ServiceGeneration, 15000, decision.Reserved)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(19000), sum.TotalCost)
}

func TestReleaseReservation(t *testing.T) {
	guard, _ := testGuard(t, testBudgetConfig())
	ctx := context.Background()

	decision, err := guard.Admit(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, guard.ReleaseReservation(ctx, "u1", decision.Reserved))

	sum, err := guard.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalCost)

	// No reservation to release is a no-op
	require.NoError(t, guard.ReleaseReservation(ctx, "u1", 0))
}

func TestLimitReflectsConfigChanges(t *testing.T) {
	cfg := testBudgetConfig()
	guard, _ := testGuard(t, cfg)

	assert.Equal(t, models.Amount(80000), guard.Limit())

	cfg.Budget.DailyLimitGBP = 0.16
	assert.Equal(t, models.Amount(160000), guard.Limit())
}

func TestEmitterSuppression(t *testing.T) {
	rec := &alertRecorder{}
	emitter := NewEmitter(NewCacheSuppressor(), rec)

	alert := models.BudgetAlert{
		UserID:         "u1",
		Type:           models.AlertWarning,
		SuppressionKey: "u1:Warning",
	}

	assert.True(t, emitter.Emit(alert, time.Minute))
	assert.False(t, emitter.Emit(alert, time.Minute))

	// Distinct keys are independent
	other := alert
	other.SuppressionKey = "u2:Warning"
	assert.True(t, emitter.Emit(other, time.Minute))

	assert.Len(t, rec.alerts, 2)
}
