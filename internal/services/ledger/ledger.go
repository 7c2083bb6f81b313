package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the per-user per-day cost bookkeeping contract.
//
// Reserve is the concurrency-critical operation: a conditional atomic
// increment-and-compare, so two racing calls can never both slip past
// the limit. Backed by redis it is a single round trip (Lua script).
type Store interface {
	// Reserve atomically adds amount to the user's day counter unless the
	// result would exceed limit. Returns the counter after the call and
	// whether the reservation was applied. A non-positive limit means
	// unconditional.
	Reserve(ctx context.Context, userID, day string, amount, limit models.Amount) (models.Amount, bool, error)
	// Release refunds a reservation whose call never completed.
	Release(ctx context.Context, userID, day string, amount models.Amount) error
	// AppendRecord appends one billable-call record.
	AppendRecord(ctx context.Context, rec models.CostRecord) error
	// DailyTotal reads the user's running total for the day.
	DailyTotal(ctx context.Context, userID, day string) (models.Amount, error)
	// Records returns the day's append-only cost records.
	Records(ctx context.Context, userID, day string) ([]models.CostRecord, error)
}

// Ledger owns cost state for the process lifetime. It wraps a Store with
// calendar-day handling in the configured time zone and summary
// aggregation.
type Ledger struct {
	store  Store
	zone   *time.Location
	logger *logrus.Logger
}

// NewLedger selects a backend per storage config, mirroring the redis /
// memory split of the storage layer.
func NewLedger(cfg *config.Config, logger *logrus.Logger) (*Ledger, error) {
	zone, err := time.LoadLocation(cfg.Budget.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger time zone: %w", err)
	}

	var store Store
	switch cfg.Storage.Type {
	case "redis":
		redisStore, err := NewRedisStore(&cfg.Storage.Redis, logger)
		if err != nil {
			return nil, err
		}
		store = redisStore
	case "memory":
		store = NewMemoryStore(&cfg.Storage.Memory, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	return &Ledger{store: store, zone: zone, logger: logger}, nil
}

// NewLedgerWithStore wraps an existing store (tests, shared clients).
func NewLedgerWithStore(store Store, zone *time.Location, logger *logrus.Logger) *Ledger {
	return &Ledger{store: store, zone: zone, logger: logger}
}

// Day returns the current calendar day key in the ledger's zone.
func (l *Ledger) Day() string {
	return time.Now().In(l.zone).Format("2006-01-02")
}

// Reserve applies a conditional charge for today.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount, limit models.Amount) (models.Amount, bool, error) {
	return l.store.Reserve(ctx, userID, l.Day(), amount, limit)
}

// Release refunds a reservation for today.
func (l *Ledger) Release(ctx context.Context, userID string, amount models.Amount) error {
	return l.store.Release(ctx, userID, l.Day(), amount)
}

// Add increments today's counter unconditionally.
func (l *Ledger) Add(ctx context.Context, userID string, amount models.Amount) (models.Amount, error) {
	total, _, err := l.store.Reserve(ctx, userID, l.Day(), amount, 0)
	return total, err
}

// AppendRecord stores one billable-call record for today.
func (l *Ledger) AppendRecord(ctx context.Context, userID, serviceType string, amount models.Amount) error {
	return l.store.AppendRecord(ctx, models.CostRecord{
		UserID:      userID,
		Day:         l.Day(),
		ServiceType: serviceType,
		Cost:        amount,
		Timestamp:   time.Now().In(l.zone),
	})
}

// DailyTotal reads today's running total.
func (l *Ledger) DailyTotal(ctx context.Context, userID string) (models.Amount, error) {
	return l.store.DailyTotal(ctx, userID, l.Day())
}

// Summary aggregates today's records into a DailyCostSummary against the
// given limit.
func (l *Ledger) Summary(ctx context.Context, userID string, limit models.Amount) (*models.DailyCostSummary, error) {
	day := l.Day()

	total, err := l.store.DailyTotal(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	records, err := l.store.Records(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	serviceCosts := make(map[string]models.ServiceCost)
	for _, rec := range records {
		sc := serviceCosts[rec.ServiceType]
		sc.Calls++
		sc.Cost += rec.Cost
		serviceCosts[rec.ServiceType] = sc
	}

	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}

	return &models.DailyCostSummary{
		UserID:          userID,
		Day:             day,
		TotalCost:       total,
		RemainingBudget: remaining,
		Limit:           limit,
		OverLimit:       total >= limit,
		ServiceCosts:    serviceCosts,
	}, nil
}
