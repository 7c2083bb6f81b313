package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/services/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("connection refused")

// fakeBackend scripts per-call outcomes.
type fakeBackend struct {
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (f *fakeBackend) Complete(_ context.Context, prompt string, _ int) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var reply string
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return reply, err
}

func testGenConfig() *config.GenerationConfig {
	return &config.GenerationConfig{
		Timeout:       10 * time.Second,
		MaxRetries:    1,
		MaxTokens:     300,
		MaxInputChars: 1000,
		MaxReplyChars: 400,
	}
}

func testOrchestrator(backend generation.Backend, cfg *config.GenerationConfig) *Orchestrator {
	return NewOrchestrator(backend, func() *config.GenerationConfig { return cfg }, quietLogger())
}

func testRequest(input string) *models.InteractionRequest {
	return &models.InteractionRequest{
		PersonaID:   TerritoryStrategist,
		UserID:      "u1",
		InputText:   input,
		GameContext: "player owns 3 territories",
	}
}

func TestGenerateSuccess(t *testing.T) {
	backend := &fakeBackend{replies: []string{"**France** is a wonderful country to explore!"}}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("tell me about France"))
	require.NoError(t, err)
	assert.True(t, outcome.Invoked)
	assert.Equal(t, 1, outcome.Attempts)
	// Markdown is flattened before moderation
	assert.Equal(t, "France is a wonderful country to explore!", outcome.Reply)

	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], p.PromptTemplate)
	assert.Contains(t, backend.prompts[0], "player owns 3 territories")
	assert.Contains(t, backend.prompts[0], "tell me about France")
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	backend := &fakeBackend{
		errs:    []error{errBackendDown, nil},
		replies: []string{"", "The map shows many countries!"},
	}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("show me the map"))
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, "The map shows many countries!", outcome.Reply)
}

func TestGenerateDoesNotRetryPermanentFailure(t *testing.T) {
	backend := &fakeBackend{
		errs: []error{fmt.Errorf("%w: status 401", generation.ErrPermanent)},
	}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("hello"))
	require.Error(t, err)
	assert.Equal(t, 1, backend.calls)
	assert.True(t, outcome.Invoked)
	assert.False(t, generation.IsTransient(err))
}

func TestGenerateExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{errs: []error{errBackendDown, errBackendDown}}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("hello"))
	require.Error(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.True(t, generation.IsTransient(err))
}

func TestGenerateEmptyInputIsPermanent(t *testing.T) {
	backend := &fakeBackend{}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("   "))
	require.Error(t, err)
	assert.False(t, outcome.Invoked)
	assert.Zero(t, backend.calls)
	assert.False(t, generation.IsTransient(err))
}

func TestGenerateBlankReplyIsPermanent(t *testing.T) {
	backend := &fakeBackend{replies: []string{"   "}}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("hello"))
	require.Error(t, err)
	assert.True(t, outcome.Invoked)
	assert.False(t, generation.IsTransient(err))
}

func TestGenerateCapsReplyLength(t *testing.T) {
	backend := &fakeBackend{replies: []string{strings.Repeat("France is great! ", 60)}}
	o := testOrchestrator(backend, testGenConfig())
	p, _ := NewRegistry().Get(TerritoryStrategist)

	outcome, err := o.Generate(context.Background(), p, testRequest("hello"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(outcome.Reply)), 400)
	assert.True(t, strings.HasSuffix(outcome.Reply, "..."))
}

func TestGenerateTrimsOversizedInput(t *testing.T) {
	backend := &fakeBackend{replies: []string{"Got it!"}}
	cfg := testGenConfig()
	cfg.MaxInputChars = 50
	o := testOrchestrator(backend, cfg)
	p, _ := NewRegistry().Get(TerritoryStrategist)

	_, err := o.Generate(context.Background(), p, testRequest(strings.Repeat("x", 500)))
	require.NoError(t, err)
	require.Len(t, backend.prompts, 1)
	assert.NotContains(t, backend.prompts[0], strings.Repeat("x", 60))
}
