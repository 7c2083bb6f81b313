package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/i18n"
	"github.com/edu-mentor-go/internal/middleware"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/audit"
	"github.com/edu-mentor-go/internal/services/budget"
	"github.com/edu-mentor-go/internal/services/generation"
	"github.com/edu-mentor-go/internal/services/ledger"
	"github.com/edu-mentor-go/internal/services/moderation"
	"github.com/edu-mentor-go/internal/services/persona"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const breakMessage = "Time for a little break!"

// scriptedBackend returns a fixed reply or error, or panics on demand.
type scriptedBackend struct {
	reply string
	err   error
	panic bool
	calls int
}

func (s *scriptedBackend) Complete(context.Context, string, int) (string, error) {
	s.calls++
	if s.panic {
		panic("backend exploded")
	}
	return s.reply, s.err
}

type fixture struct {
	pipeline *Pipeline
	guard    *budget.Guard
	backend  *scriptedBackend
	persona  *models.Persona
}

func newFixture(t *testing.T, backend *scriptedBackend, mutate func(*config.Config)) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Budget: config.BudgetConfig{
			DailyLimitGBP:              0.08,
			AlertThresholdPct:          0.80,
			EmergencyThrottlingEnabled: true,
			MinAlertInterval:           15 * time.Minute,
			TimeZone:                   "UTC",
		},
		Generation: config.GenerationConfig{
			Timeout:        10 * time.Second,
			MaxRetries:     0,
			MaxTokens:      300,
			MaxInputChars:  1000,
			MaxReplyChars:  400,
			CostPerCallGBP: 0.01,
		},
		Moderation: config.ModerationConfig{
			Timeout:             3 * time.Second,
			ConfidenceThreshold: 0.70,
			SafetyWeight:        0.60,
			AgeWeight:           0.25,
			EducationalWeight:   0.15,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := ledger.NewMemoryStore(&config.MemoryConfig{
		DefaultExpiration: time.Hour,
		CleanupInterval:   time.Hour,
	}, log)
	l := ledger.NewLedgerWithStore(store, time.UTC, log)

	emitter := budget.NewEmitter(budget.NewCacheSuppressor(), budget.NewLogSink(log))
	guard := budget.NewGuard(l, func() *config.Config { return cfg }, emitter, log)

	registry := persona.NewRegistry()
	orchestrator := persona.NewOrchestrator(backend, func() *config.GenerationConfig {
		return &cfg.Generation
	}, log)
	gate := moderation.NewGate(func() *config.ModerationConfig {
		return &cfg.Moderation
	}, log)
	catalogue := persona.NewCatalogue(registry, log)
	recorder := audit.NewRecorder(audit.NewLogStore(log), log)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"),
		[]byte(fmt.Sprintf(`{"budget_break": %q}`, breakMessage)), 0o644))
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en"},
		Directory:       dir,
	})
	require.NoError(t, err)

	p, err := registry.Get(persona.TerritoryStrategist)
	require.NoError(t, err)

	return &fixture{
		pipeline: New(orchestrator, gate, catalogue, guard, recorder, localizer, middleware.NewMetrics(), log),
		guard:    guard,
		backend:  backend,
		persona:  p,
	}
}

func request(input string) *models.InteractionRequest {
	return &models.InteractionRequest{
		PersonaID: persona.TerritoryStrategist,
		UserID:    "u1",
		InputText: input,
	}
}

func dailyTotal(t *testing.T, f *fixture) models.Amount {
	t.Helper()
	sum, err := f.guard.Summary(context.Background(), "u1")
	require.NoError(t, err)
	return sum.TotalCost
}

func TestProcessApprovedReply(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		reply: "France's geography is amazing! Its capital is Paris and its economy is one of Europe's largest.",
	}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("tell me about France"))

	assert.False(t, result.UsedFallback)
	assert.True(t, result.IsAppropriate)
	assert.Contains(t, result.Reply, "France")
	// The call cost was committed
	assert.Equal(t, models.Amount(10000), dailyTotal(t, f))
}

func TestProcessTransientFailureRefundsReservation(t *testing.T) {
	f := newFixture(t, &scriptedBackend{err: errors.New("connection refused")}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("hello there"))

	assert.True(t, result.UsedFallback)
	assert.True(t, result.IsAppropriate)
	assert.Contains(t, f.persona.FallbackReplies, result.Reply)
	// The call never completed, so nothing was billed
	assert.Zero(t, dailyTotal(t, f))
}

func TestProcessPermanentFailureIsBilled(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		err: fmt.Errorf("%w: status 400", generation.ErrPermanent),
	}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("hello there"))

	assert.True(t, result.UsedFallback)
	// The backend processed the call even though it failed
	assert.Equal(t, models.Amount(10000), dailyTotal(t, f))
}

func TestProcessModerationRejectionIsBilled(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		reply: "The war was terrible and many people were hurt.",
	}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("what happened"))

	assert.True(t, result.UsedFallback)
	assert.True(t, result.IsAppropriate)
	assert.NotContains(t, result.Reply, "war")
	assert.Contains(t, f.persona.FallbackReplies, result.Reply)
	// Generation cost was incurred before the draft was rejected
	assert.Equal(t, models.Amount(10000), dailyTotal(t, f))
}

func TestProcessBudgetDenialShortCircuits(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		reply: "Geography is fun and full of countries to learn about!",
	}, func(cfg *config.Config) {
		cfg.Budget.DailyLimitGBP = 0.02
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result := f.pipeline.Process(ctx, f.persona, request("tell me more"))
		require.False(t, result.UsedFallback)
	}
	callsBefore := f.backend.calls

	result := f.pipeline.Process(ctx, f.persona, request("tell me more"))

	assert.True(t, result.UsedFallback)
	assert.True(t, result.IsAppropriate)
	// The friendly break message leads the reply
	assert.Contains(t, result.Reply, breakMessage)
	// Denied before the backend was ever invoked
	assert.Equal(t, callsBefore, f.backend.calls)
	assert.Equal(t, models.Amount(20000), dailyTotal(t, f))
}

func TestProcessEmptyInputFallsBack(t *testing.T) {
	f := newFixture(t, &scriptedBackend{reply: "unused"}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("   "))

	assert.True(t, result.UsedFallback)
	assert.Zero(t, f.backend.calls)
	// No backend call happened, so the reservation was refunded
	assert.Zero(t, dailyTotal(t, f))
}

func TestProcessRecoversFromPanic(t *testing.T) {
	f := newFixture(t, &scriptedBackend{panic: true}, nil)

	result := f.pipeline.Process(context.Background(), f.persona, request("hello there"))

	require.NotNil(t, result)
	assert.True(t, result.UsedFallback)
	assert.True(t, result.IsAppropriate)
	assert.NotEmpty(t, result.Reply)
}

// Whatever fails, the caller always gets a presentable reply.
func TestProcessAlwaysReturnsUsableResult(t *testing.T) {
	backends := []*scriptedBackend{
		{reply: "Learning about countries is wonderful!"},
		{err: errors.New("network down")},
		{err: fmt.Errorf("%w: refused", generation.ErrPermanent)},
		{reply: "I hate this stupid game."},
		{reply: ""},
		{panic: true},
	}

	for i, backend := range backends {
		f := newFixture(t, backend, nil)
		result := f.pipeline.Process(context.Background(), f.persona, request("tell me something"))

		require.NotNil(t, result, "backend %d", i)
		assert.NotEmpty(t, result.Reply, "backend %d", i)
		assert.True(t, result.IsAppropriate, "backend %d", i)
		assert.Equal(t, f.persona.ID, result.PersonaID, "backend %d", i)
		assert.False(t, result.Timestamp.IsZero(), "backend %d", i)
	}
}
