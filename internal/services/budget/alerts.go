package budget

import (
	"context"
	"time"

	"github.com/edu-mentor-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Suppressor decides whether an alert key may fire. Allow must be atomic
// so concurrent triggers cannot both pass; a missed suppression under a
// race is tolerated, a lost alert is not.
type Suppressor interface {
	Allow(key string, interval time.Duration) bool
}

// CacheSuppressor keeps suppression timestamps in process memory.
// go-cache's Add is an atomic check-and-set under its internal lock.
type CacheSuppressor struct {
	cache *cache.Cache
}

func NewCacheSuppressor() *CacheSuppressor {
	return &CacheSuppressor{cache: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (s *CacheSuppressor) Allow(key string, interval time.Duration) bool {
	return s.cache.Add(key, struct{}{}, interval) == nil
}

// RedisSuppressor shares suppression state across instances via SETNX.
type RedisSuppressor struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisSuppressor(client *redis.Client, logger *logrus.Logger) *RedisSuppressor {
	return &RedisSuppressor{client: client, logger: logger}
}

func (s *RedisSuppressor) Allow(key string, interval time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := s.client.SetNX(ctx, "alert:cooldown:"+key, 1, interval).Result()
	if err != nil {
		// Degraded outcome: emit rather than silently drop
		s.logger.WithError(err).Warn("Alert suppression check failed, allowing alert")
		return true
	}
	return ok
}

// Sink receives alerts that survived suppression.
type Sink interface {
	Emit(alert models.BudgetAlert)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(models.BudgetAlert)

func (f SinkFunc) Emit(alert models.BudgetAlert) { f(alert) }

// LogSink writes alerts to the service log at warning severity.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(alert models.BudgetAlert) {
	s.logger.WithFields(logrus.Fields{
		"user_id":     alert.UserID,
		"alert_type":  alert.Type,
		"current_gbp": alert.CurrentCost.Pounds(),
		"limit_gbp":   alert.Limit.Pounds(),
	}).Warn(alert.Message)
}

// Emitter dedupes and fans out alerts.
type Emitter struct {
	suppressor Suppressor
	sinks      []Sink
}

func NewEmitter(suppressor Suppressor, sinks ...Sink) *Emitter {
	return &Emitter{suppressor: suppressor, sinks: sinks}
}

// Emit sends the alert to every sink unless its suppression key fired
// within the interval. Reports whether the alert went out.
func (e *Emitter) Emit(alert models.BudgetAlert, interval time.Duration) bool {
	if !e.suppressor.Allow(alert.SuppressionKey, interval) {
		return false
	}
	for _, sink := range e.sinks {
		sink.Emit(alert)
	}
	return true
}
