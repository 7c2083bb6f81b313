package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/sirupsen/logrus"
)

// Backend is the black-box text completion contract. Implementations are
// treated as unreliable and latent; callers own retries and deadlines.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ErrPermanent marks backend failures that must not be retried
// (client errors, content refusals, empty replies).
var ErrPermanent = errors.New("permanent backend error")

// IsTransient reports whether a backend error may be retried.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}

// Message is one chat message in the completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HTTPBackend talks to an OpenAI-compatible chat completion endpoint.
type HTTPBackend struct {
	cfgFn      func() *config.GenerationConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPBackend creates a backend client. cfgFn is consulted per call so
// endpoint and timeout changes apply without restart.
func NewHTTPBackend(cfgFn func() *config.GenerationConfig, logger *logrus.Logger) *HTTPBackend {
	return &HTTPBackend{
		cfgFn: cfgFn,
		httpClient: &http.Client{
			// Per-attempt deadlines come from the request context; this is
			// only a hard ceiling against a wedged transport.
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// Complete sends one completion request. The attempt is bounded by the
// configured generation timeout on top of the caller's context.
func (b *HTTPBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	cfg := b.cfgFn()

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"messages": []Message{
			{Role: "user", Content: prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": 0.7,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrPermanent, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrPermanent, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))

	b.logger.WithFields(logrus.Fields{
		"model": cfg.Model,
		"url":   url,
	}).Debug("Sending completion request")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		// Network and deadline failures are transient by definition
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		b.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Completion request failed")

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("completion failed with status %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrPermanent, err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("%w: backend error: %s", ErrPermanent, result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty reply", ErrPermanent)
	}

	return result.Choices[0].Message.Content, nil
}
