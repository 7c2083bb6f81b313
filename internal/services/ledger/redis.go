package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edu-mentor-go/internal/config"
	"github.com/edu-mentor-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Counter keys expire two days after their calendar day rolls over.
const keyTTL = 48 * time.Hour

// reserveScript performs the increment-and-compare in one round trip.
// KEYS[1] counter key; ARGV[1] amount, ARGV[2] limit (0 = unconditional),
// ARGV[3] TTL seconds. Returns {total, applied}.
var reserveScript = redis.NewScript(`
local total = redis.call('INCRBY', KEYS[1], ARGV[1])
local limit = tonumber(ARGV[2])
if limit > 0 and total > limit then
  total = redis.call('DECRBY', KEYS[1], ARGV[1])
  return {total, 0}
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {total, 1}
`)

// RedisStore implements the cost ledger on Redis, the shared backend for
// horizontally scaled deployments.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for sibling services sharing
// the instance (audit trail).
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func totalKey(userID, day string) string {
	return fmt.Sprintf("cost:total:%s:%s", userID, day)
}

func recordsKey(userID, day string) string {
	return fmt.Sprintf("cost:records:%s:%s", userID, day)
}

func (r *RedisStore) Reserve(ctx context.Context, userID, day string, amount, limit models.Amount) (models.Amount, bool, error) {
	res, err := reserveScript.Run(ctx, r.client,
		[]string{totalKey(userID, day)},
		int64(amount), int64(limit), int(keyTTL.Seconds()),
	).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reserve failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected reserve script reply: %v", res)
	}
	total, _ := vals[0].(int64)
	applied, _ := vals[1].(int64)
	return models.Amount(total), applied == 1, nil
}

func (r *RedisStore) Release(ctx context.Context, userID, day string, amount models.Amount) error {
	if err := r.client.DecrBy(ctx, totalKey(userID, day), int64(amount)).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

func (r *RedisStore) AppendRecord(ctx context.Context, rec models.CostRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := recordsKey(rec.UserID, rec.Day)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append record failed: %w", err)
	}
	return nil
}

func (r *RedisStore) DailyTotal(ctx context.Context, userID, day string) (models.Amount, error) {
	val, err := r.client.Get(ctx, totalKey(userID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return models.Amount(val), nil
}

func (r *RedisStore) Records(ctx context.Context, userID, day string) ([]models.CostRecord, error) {
	items, err := r.client.LRange(ctx, recordsKey(userID, day), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]models.CostRecord, 0, len(items))
	for _, item := range items {
		var rec models.CostRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			r.logger.WithError(err).Warn("Skipping malformed cost record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
