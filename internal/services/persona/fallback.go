package persona

import (
	"fmt"
	"hash/fnv"

	"github.com/edu-mentor-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Verdict producer used for the catalogue self-check at startup.
// Matches the moderation gate's Validate signature.
type selfChecker interface {
	Check(text string, p *models.Persona) (bool, []string)
}

// Catalogue serves the pre-vetted fallback replies per persona.
// Replies are validated once at load time, so the fallback path needs no
// runtime moderation.
type Catalogue struct {
	registry *Registry
	logger   *logrus.Logger
}

// NewCatalogue builds the catalogue over the persona registry.
func NewCatalogue(registry *Registry, logger *logrus.Logger) *Catalogue {
	return &Catalogue{registry: registry, logger: logger}
}

// SelfCheck passes every fallback reply of every persona through the
// moderation gate. A failure is a deployment defect and aborts startup.
func (c *Catalogue) SelfCheck(gate selfChecker) error {
	for _, p := range c.registry.All() {
		if len(p.FallbackReplies) == 0 {
			return fmt.Errorf("persona %s has no fallback replies", p.ID)
		}
		for i, reply := range p.FallbackReplies {
			ok, concerns := gate.Check(reply, p)
			if !ok {
				return fmt.Errorf("fallback %d for persona %s failed moderation: %v", i, p.ID, concerns)
			}
		}
		c.logger.WithFields(logrus.Fields{
			"persona":   p.ID,
			"fallbacks": len(p.FallbackReplies),
		}).Debug("Fallback replies validated")
	}
	c.logger.Info("Fallback catalogue self-check passed")
	return nil
}

// Select returns a fallback reply for the persona. Selection is
// deterministic for a given reason context, so identical failures
// reproduce in tests, while distinct inputs vary the reply.
func (c *Catalogue) Select(p *models.Persona, reasonContext string) string {
	replies := p.FallbackReplies
	if len(replies) == 0 {
		// Guarded against by SelfCheck; kept as a terminal safety net.
		return "Let's keep exploring and learning together!"
	}

	h := fnv.New32a()
	h.Write([]byte(reasonContext))
	return replies[h.Sum32()%uint32(len(replies))]
}
