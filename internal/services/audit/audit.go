package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edu-mentor-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Audit retention; compliance review happens well within this window.
const retention = 30 * 24 * time.Hour

// Store is the append-only audit trail backend.
type Store interface {
	AppendAuditEvent(ctx context.Context, event models.AuditEvent) error
}

// RedisStore appends audit events to a per-day redis list.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) AppendAuditEvent(ctx context.Context, event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("audit:%s", event.Timestamp.Format("2006-01-02"))
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, retention)
	_, err = pipe.Exec(ctx)
	return err
}

// LogStore writes audit events to the structured log; the default when
// no shared store is configured.
type LogStore struct {
	logger *logrus.Logger
}

func NewLogStore(logger *logrus.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) AppendAuditEvent(_ context.Context, event models.AuditEvent) error {
	s.logger.WithFields(logrus.Fields{
		"audit":      true,
		"user_id":    event.UserID,
		"persona_id": event.PersonaID,
		"kind":       event.Kind,
		"detail":     event.Detail,
		"concerns":   event.Concerns,
	}).Info("Audit event")
	return nil
}

// Recorder persists audit events without blocking the caller: the reply
// to the child must never wait on a slow audit write.
type Recorder struct {
	store  Store
	logger *logrus.Logger
}

func NewRecorder(store Store, logger *logrus.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends the event fire-and-forget. Failures are logged, never
// surfaced.
func (r *Recorder) Record(event models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.store.AppendAuditEvent(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": event.UserID,
				"kind":    event.Kind,
			}).Error("Failed to append audit event")
		}
	}()
}
