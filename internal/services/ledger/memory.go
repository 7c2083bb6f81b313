package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStore implements the cost ledger in process memory for
// single-node deployments and tests. go-cache expires old days on its
// own; the mutex makes reserve a true conditional update.
type MemoryStore struct {
	mu      sync.Mutex
	totals  *cache.Cache
	records *cache.Cache
	logger  *logrus.Logger
}

func NewMemoryStore(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		totals:  cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		records: cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		logger:  logger,
	}
}

func memKey(userID, day string) string {
	return fmt.Sprintf("%s:%s", userID, day)
}

func (m *MemoryStore) Reserve(_ context.Context, userID, day string, amount, limit models.Amount) (models.Amount, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(userID, day)
	var total models.Amount
	if val, found := m.totals.Get(key); found {
		total = val.(models.Amount)
	}

	if limit > 0 && total+amount > limit {
		return total, false, nil
	}

	total += amount
	m.totals.SetDefault(key, total)
	return total, true, nil
}

func (m *MemoryStore) Release(_ context.Context, userID, day string, amount models.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(userID, day)
	var total models.Amount
	if val, found := m.totals.Get(key); found {
		total = val.(models.Amount)
	}
	total -= amount
	if total < 0 {
		total = 0
	}
	m.totals.SetDefault(key, total)
	return nil
}

func (m *MemoryStore) AppendRecord(_ context.Context, rec models.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(rec.UserID, rec.Day)
	var recs []models.CostRecord
	if val, found := m.records.Get(key); found {
		recs = val.([]models.CostRecord)
	}
	recs = append(recs, rec)
	m.records.SetDefault(key, recs)
	return nil
}

func (m *MemoryStore) DailyTotal(_ context.Context, userID, day string) (models.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.totals.Get(memKey(userID, day)); found {
		return val.(models.Amount), nil
	}
	return 0, nil
}

func (m *MemoryStore) Records(_ context.Context, userID, day string) ([]models.CostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.records.Get(memKey(userID, day)); found {
		recs := val.([]models.CostRecord)
		out := make([]models.CostRecord, len(recs))
		copy(out, recs)
		return out, nil
	}
	return nil, nil
}
