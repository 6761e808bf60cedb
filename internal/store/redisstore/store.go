package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix = "portfolio:profile:"
	loginKeyPrefix   = "portfolio:login_failures:"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func profileKey(id string) string {
	if id == "" {
		id = "default"
	}
	return profileKeyPrefix + id
}

func loginKey(username string) string {
	return loginKeyPrefix + username
}

// GetProfileView returns the cached JSON for a profile page, or redis.Nil.
func (s *Store) GetProfileView(ctx context.Context, id string) ([]byte, error) {
	return s.rdb.Get(ctx, profileKey(id)).Bytes()
}

func (s *Store) SetProfileView(ctx context.Context, id string, b []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, profileKey(id), b, ttl).Err()
}

// InvalidateProfiles drops every cached profile view.
func (s *Store) InvalidateProfiles(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, profileKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) LoginFailures(ctx context.Context, username string) (int64, error) {
	n, err := s.rdb.Get(ctx, loginKey(username)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// RecordLoginFailure bumps the failure counter. The window starts at the
// first failure.
func (s *Store) RecordLoginFailure(ctx context.Context, username string, window time.Duration) (int64, error) {
	key := loginKey(username)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, loginKey(username)).Err()
}
