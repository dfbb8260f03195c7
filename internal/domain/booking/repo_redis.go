package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Each phone holds at most one challenge hash; writing a new one replaces
// (supersedes) the previous. Keys expire with the challenge.
const challengeKeyPrefix = "otp:challenge:"

func challengeKey(phone string) string { return challengeKeyPrefix + phone }

// verifyScript marks the hash verified when it is live and the code matches.
// A wrong code bumps the attempt counter and deletes the hash once ARGV[3]
// misses are reached.
// KEYS[1] challenge key, ARGV[1] code, ARGV[2] now in unix millis,
// ARGV[3] attempt budget.
var verifyScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'id', 'code', 'created_at', 'expires_at', 'verified')
if not v[1] then return false end
if v[5] == '1' then return false end
if tonumber(v[4]) <= tonumber(ARGV[2]) then return false end
if v[2] ~= ARGV[1] then
	if redis.call('HINCRBY', KEYS[1], 'attempts', 1) >= tonumber(ARGV[3]) then
		redis.call('DEL', KEYS[1])
	end
	return false
end
redis.call('HSET', KEYS[1], 'verified', '1', 'verified_at', ARGV[2])
return {v[1], v[3], v[4]}
`)

// invalidateScript deletes the hash only if it still holds ARGV[1].
var invalidateScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type challengeStoreRedis struct {
	client *redis.Client
	grace  time.Duration
}

// NewChallengeStoreRedis stores challenges in Redis. Verified hashes linger
// for grace past expiry before Redis evicts them.
func NewChallengeStoreRedis(client *redis.Client, grace time.Duration) ChallengeStore {
	return &challengeStoreRedis{client: client, grace: grace}
}

func (r *challengeStoreRedis) Create(ctx context.Context, c *Challenge) error {
	key := challengeKey(c.Phone)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"id", c.ID.String(),
			"code", c.Code,
			"created_at", c.CreatedAt.UnixMilli(),
			"expires_at", c.ExpiresAt.UnixMilli(),
			"verified", "0",
			"attempts", 0,
		)
		p.PExpireAt(ctx, key, c.ExpiresAt.Add(r.grace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (r *challengeStoreRedis) Verify(ctx context.Context, phone, code string, now time.Time) (*Challenge, error) {
	res, err := verifyScript.Run(ctx, r.client, []string{challengeKey(phone)}, code, now.UnixMilli(), MaxOTPAttempts).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoActiveChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("verify challenge: %w", err)
	}
	return parseVerified(phone, code, now, res)
}

func parseVerified(phone, code string, now time.Time, res []interface{}) (*Challenge, error) {
	if len(res) != 3 {
		return nil, fmt.Errorf("verify challenge: unexpected reply %v", res)
	}
	fields := make([]string, len(res))
	for i, v := range res {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("verify challenge: unexpected field %v", v)
		}
		fields[i] = s
	}
	id, err := uuid.Parse(fields[0])
	if err != nil {
		return nil, fmt.Errorf("verify challenge: %w", err)
	}
	created, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("verify challenge: %w", err)
	}
	expires, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("verify challenge: %w", err)
	}
	at := now
	return &Challenge{
		ID:         id,
		Phone:      phone,
		Code:       code,
		CreatedAt:  time.UnixMilli(created),
		ExpiresAt:  time.UnixMilli(expires),
		Verified:   true,
		VerifiedAt: &at,
	}, nil
}

func (r *challengeStoreRedis) Invalidate(ctx context.Context, c *Challenge, _ time.Time) error {
	if err := invalidateScript.Run(ctx, r.client, []string{challengeKey(c.Phone)}, c.ID.String()).Err(); err != nil {
		return fmt.Errorf("invalidate challenge: %w", err)
	}
	return nil
}

// Purge is a no-op: Redis expires challenge keys on its own.
func (r *challengeStoreRedis) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

// Ping reports Redis reachability for health checks.
func (r *challengeStoreRedis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
