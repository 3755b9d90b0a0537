package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// RedisAttemptRepository stores attempts in Redis so several service
// instances can share them.
type RedisAttemptRepository struct {
	rdb *redis.Client
}

// NewRedisAttemptRepository creates a new RedisAttemptRepository.
func NewRedisAttemptRepository(rdb *redis.Client) *RedisAttemptRepository {
	return &RedisAttemptRepository{rdb: rdb}
}

func (r *RedisAttemptRepository) Create(ctx context.Context, rec *model.AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, config.CacheKey.AttemptKey(rec.ID), data, 0)
		pipe.RPush(ctx, config.CacheKey.StudentCourseAttemptsKey(rec.StudentID, rec.CourseID), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (r *RedisAttemptRepository) Get(ctx context.Context, id string) (*model.AttemptRecord, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.AttemptKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	var rec model.AttemptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	return &rec, nil
}

func (r *RedisAttemptRepository) Update(ctx context.Context, rec *model.AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	ok, err := r.rdb.SetXX(ctx, config.CacheKey.AttemptKey(rec.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisAttemptRepository) ListByStudentCourse(ctx context.Context, studentID int, courseID string) ([]model.AttemptRecord, error) {
	ids, err := r.rdb.LRange(ctx, config.CacheKey.StudentCourseAttemptsKey(studentID, courseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.AttemptKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}

	out := make([]model.AttemptRecord, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec model.AttemptRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisAttemptRepository) SaveAnswers(ctx context.Context, attemptID string, answers model.AnswerSet) error {
	key := config.CacheKey.AttemptAnswersKey(attemptID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(answers) > 0 {
			fields := make(map[string]any, len(answers))
			for q, choice := range answers {
				fields[q] = choice
			}
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func (r *RedisAttemptRepository) GetAnswers(ctx context.Context, attemptID string) (model.AnswerSet, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	out := make(model.AnswerSet, len(raw))
	for q, v := range raw {
		choice, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid stored choice for %s: %w", q, err)
		}
		out[q] = choice
	}
	return out, nil
}

func (r *RedisAttemptRepository) AppendLeave(ctx context.Context, rec model.LeaveRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode leave: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.CacheKey.AttemptLeavesKey(rec.AttemptID), data).Err(); err != nil {
		return fmt.Errorf("append leave: %w", err)
	}
	return nil
}

func (r *RedisAttemptRepository) ListLeaves(ctx context.Context, attemptID string) ([]model.LeaveRecord, error) {
	raw, err := r.rdb.LRange(ctx, config.CacheKey.AttemptLeavesKey(attemptID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	out := make([]model.LeaveRecord, 0, len(raw))
	for _, s := range raw {
		var rec model.LeaveRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode leave: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
