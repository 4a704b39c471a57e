package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "kronos:schedules"

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// Redis stores every record as a JSON value in a single hash keyed by job name.
type Redis struct {
	client *redis.Client
	key    string
}

var _ core.ScheduleStore = (*Redis)(nil)

func NewRedis(ctx context.Context, cfg *RedisConfig) (*Redis, error) {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.InfraError(fmt.Errorf("failed to ping redis: %w", err)).WithCode("STORE_UNAVAILABLE")
	}
	return NewRedisWithClient(client, cfg.Key), nil
}

// NewRedisWithClient wraps an existing client. An empty key selects DefaultRedisKey.
func NewRedisWithClient(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Save(ctx context.Context, record core.ScheduleRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, record.Name, payload).Err(); err != nil {
		return errors.InfraError(fmt.Errorf("save schedule %q: %w", record.Name, err))
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	if err := r.client.HDel(ctx, r.key, name).Err(); err != nil {
		return errors.InfraError(fmt.Errorf("delete schedule %q: %w", name, err))
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) ([]core.ScheduleRecord, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.InfraError(fmt.Errorf("load schedules: %w", err))
	}
	records := make([]core.ScheduleRecord, 0, len(values))
	for name, raw := range values {
		var record core.ScheduleRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode schedule %q: %w", name, err)
		}
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
