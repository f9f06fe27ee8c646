package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutPolicy controls when repeated login failures lock an account.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Duration    time.Duration
}

// DefaultLockoutPolicy locks after five failures within an hour for fifteen minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Window: time.Hour, Duration: 15 * time.Minute}
}

// LockoutStore tracks failed logins and account locks in Redis.
type LockoutStore struct {
	client redis.UniversalClient
	policy LockoutPolicy
	prefix string
}

// NewLockoutStore builds a LockoutStore. Zero policy fields take defaults.
func NewLockoutStore(client redis.UniversalClient, policy LockoutPolicy) *LockoutStore {
	def := DefaultLockoutPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.Duration <= 0 {
		policy.Duration = def.Duration
	}
	return &LockoutStore{client: client, policy: policy, prefix: "registry:lockout:"}
}

func (s *LockoutStore) attemptsKey(userID string) string { return s.prefix + "attempts:" + userID }
func (s *LockoutStore) lockKey(userID string) string     { return s.prefix + "locked:" + userID }

// IsLocked reports whether the account is currently locked.
func (s *LockoutStore) IsLocked(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.lockKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordFailure counts a failed login and locks the account once the policy
// threshold is reached inside the window. It reports whether a lock was applied.
func (s *LockoutStore) RecordFailure(ctx context.Context, userID string) (bool, error) {
	key := s.attemptsKey(userID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, s.policy.Window).Err(); err != nil {
			return false, err
		}
	}
	if count < int64(s.policy.MaxAttempts) {
		return false, nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.lockKey(userID), time.Now().UTC().Format(time.RFC3339), s.policy.Duration)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear forgets failed attempts after a successful login.
func (s *LockoutStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.attemptsKey(userID)).Err()
}

// Unlock removes the lock and the attempt counter.
func (s *LockoutStore) Unlock(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.lockKey(userID), s.attemptsKey(userID)).Err()
}
