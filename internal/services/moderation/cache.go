package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// CachedGate memoizes verdicts for the client-side pre-check endpoint.
// The interaction pipeline bypasses it: every generated reply is
// moderated fresh.
type CachedGate struct {
	gate   *Gate
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewCachedGate wraps gate with a TTL verdict cache.
func NewCachedGate(gate *Gate, cfg *config.ModerationConfig, logger *logrus.Logger) *CachedGate {
	return &CachedGate{
		gate:   gate,
		cache:  cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		logger: logger,
	}
}

// Validate returns a cached verdict when the same text/persona pair was
// checked recently.
func (c *CachedGate) Validate(ctx context.Context, text string, p *models.Persona) models.ModerationVerdict {
	key := cacheKey(text, p)
	if val, found := c.cache.Get(key); found {
		c.logger.Debug("Moderation verdict cache hit")
		return val.(models.ModerationVerdict)
	}

	verdict := c.gate.Validate(ctx, text, p)
	c.cache.SetDefault(key, verdict)
	return verdict
}

func cacheKey(text string, p *models.Persona) string {
	personaID := ""
	if p != nil {
		personaID = p.ID
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", personaID, text)))
	return hex.EncodeToString(hash[:])
}
