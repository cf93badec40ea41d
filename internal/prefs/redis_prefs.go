package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const advanceKey = "wa-scheduler:prefs:advance"

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type advanceValue struct {
	Minutes   int       `json:"minutes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *RedisStore) AdvanceMinutes(ctx context.Context) (int, bool, error) {
	raw, err := s.rdb.Get(ctx, advanceKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var v advanceValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, fmt.Errorf("decode %s: %w", advanceKey, err)
	}
	if !validAdvance(v.Minutes) {
		return 0, false, fmt.Errorf("%w: stored %d", ErrInvalidAdvance, v.Minutes)
	}
	return v.Minutes, true, nil
}

func (s *RedisStore) SetAdvanceMinutes(ctx context.Context, minutes int) error {
	if !validAdvance(minutes) {
		return ErrInvalidAdvance
	}

	b, err := json.Marshal(advanceValue{
		Minutes:   minutes,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.rdb.Set(ctx, advanceKey, b, 0).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
