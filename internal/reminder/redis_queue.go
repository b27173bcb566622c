package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisDueKey        = "reminders:due"
	redisJobPrefix     = "reminders:job:"
	redisStudentPrefix = "reminders:student:"
)

// RedisQueue очередь напоминаний в Redis.
// Сортированное множество reminders:due хранит ключи задач по времени срабатывания,
// reminders:job:<key> содержит задачу в JSON, reminders:student:<id> индекс задач ученика.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisQueue(client *redis.Client, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, logger: logger}
}

func studentIndexKey(studentID string) string {
	return redisStudentPrefix + studentID
}

func (q *RedisQueue) List(ctx context.Context, studentID string) ([]Job, error) {
	keys, err := q.client.SMembers(ctx, studentIndexKey(studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list reminder keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	payloadKeys := make([]string, len(keys))
	for i, k := range keys {
		payloadKeys[i] = redisJobPrefix + k
	}
	values, err := q.client.MGet(ctx, payloadKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}

	jobs := make([]Job, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn("Dropping undecodable reminder",
				zap.String("key", keys[i]),
				zap.Error(err))
			stale = append(stale, keys[i])
			continue
		}
		jobs = append(jobs, job)
	}

	if len(stale) > 0 {
		if err := q.client.SRem(ctx, studentIndexKey(studentID), stale...).Err(); err != nil {
			q.logger.Warn("Failed to clean reminder index",
				zap.String("student_id", studentID),
				zap.Error(err))
		}
	}

	sortJobs(jobs)
	return jobs, nil
}

func (q *RedisQueue) Schedule(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, redisJobPrefix+job.Key, data, 0)
	pipe.ZAdd(ctx, redisDueKey, redis.Z{
		Score:  float64(job.FireAt.Unix()),
		Member: job.Key,
	})
	pipe.SAdd(ctx, studentIndexKey(job.StudentID), job.Key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

func (q *RedisQueue) Cancel(ctx context.Context, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, redisJobPrefix+job.Key)
	pipe.ZRem(ctx, redisDueKey, job.Key)
	pipe.SRem(ctx, studentIndexKey(job.StudentID), job.Key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return nil
}

// PopDue забирает сработавшие задачи. Задачу получает тот, чей ZREM удалил её из
// reminders:due, поэтому при нескольких процессах она доставляется один раз.
func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	keys, err := q.client.ZRangeByScore(ctx, redisDueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	var jobs []Job
	for _, key := range keys {
		removed, err := q.client.ZRem(ctx, redisDueKey, key).Result()
		if err != nil {
			return jobs, fmt.Errorf("claim reminder %s: %w", key, err)
		}
		if removed == 0 {
			continue
		}

		data, err := q.client.Get(ctx, redisJobPrefix+key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return jobs, fmt.Errorf("load reminder %s: %w", key, err)
		}

		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			q.logger.Warn("Dropping undecodable reminder", zap.String("key", key), zap.Error(err))
			q.client.Del(ctx, redisJobPrefix+key)
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.Del(ctx, redisJobPrefix+key)
		pipe.SRem(ctx, studentIndexKey(job.StudentID), key)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Warn("Failed to clean fired reminder", zap.String("key", key), zap.Error(err))
		}

		jobs = append(jobs, job)
	}
	return jobs, nil
}
