package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/session/domain"
)

// Key layout under prefix:
//
//	{prefix}:rs:{hash}          HASH  one record
//	{prefix}:rs:user:{userID}   SET   hashes owned by the user
//	{prefix}:rs:expiry          ZSET  hash scored by expires_at (unix ms)
//	{prefix}:rs:inactive        SET   hashes revoked and awaiting purge
//
// Records carry no Redis TTL: expired records stay readable until the sweeper purges them, so
// lookups can tell "expired" apart from "not found".

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "user_id", ARGV[2], "token_hash", ARGV[3], "expires_at", ARGV[4],
  "created_by_ip", ARGV[5], "user_agent", ARGV[6], "active", "1",
  "replaced_by_hash", ARGV[7], "created_at", ARGV[8], "updated_at", ARGV[8])
redis.call("SADD", KEYS[2], ARGV[3])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[3])
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const revokeIfActiveScript = `
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0", "updated_at", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

var revokeIfActiveLua = redis.NewScript(revokeIfActiveScript)

const revokeAllForUserScript = `
local n = 0
for _, h in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local k = ARGV[1] .. h
  if redis.call("HGET", k, "active") == "1" then
    redis.call("HSET", k, "active", "0", "updated_at", ARGV[2])
    redis.call("SADD", KEYS[2], h)
    n = n + 1
  end
end
return n
`

var revokeAllForUserLua = redis.NewScript(revokeAllForUserScript)

const purgeScript = `
local victims = {}
for _, h in ipairs(redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[2])) do
  victims[h] = true
end
for _, h in ipairs(redis.call("SMEMBERS", KEYS[2])) do
  victims[h] = true
end
local n = 0
for h, _ in pairs(victims) do
  local k = ARGV[1] .. h
  local uid = redis.call("HGET", k, "user_id")
  if uid then
    redis.call("SREM", ARGV[3] .. uid, h)
  end
  n = n + redis.call("DEL", k)
  redis.call("ZREM", KEYS[1], h)
  redis.call("SREM", KEYS[2], h)
end
return n
`

var purgeLua = redis.NewScript(purgeScript)

// RedisRepository stores refresh sessions in Redis. Every mutation is a single Lua script, so it
// is atomic with respect to other clients.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRepository returns a session repository backed by client with keys under prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisRepository{redis: client, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) recordPrefix() string { return r.prefix + ":rs:" }

func (r *RedisRepository) recordKey(hash string) string { return r.recordPrefix() + hash }

func (r *RedisRepository) userPrefix() string { return r.prefix + ":rs:user:" }

func (r *RedisRepository) userKey(userID string) string { return r.userPrefix() + userID }

func (r *RedisRepository) expiryKey() string { return r.prefix + ":rs:expiry" }

func (r *RedisRepository) inactiveKey() string { return r.prefix + ":rs:inactive" }

// Create hashes p.RawToken and stores an active record. Returns ErrDuplicateCredential if the hash exists.
func (r *RedisRepository) Create(ctx context.Context, p domain.CreateParams) (*domain.Session, error) {
	if p.RawToken == "" || p.UserID == "" {
		return nil, errors.New("session repository: token and user are required")
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	s := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         p.UserID,
		TokenHash:      security.HashRefreshToken(p.RawToken),
		ExpiresAt:      p.ExpiresAt.UTC().Truncate(time.Millisecond),
		CreatedByIP:    p.IP,
		UserAgent:      p.UserAgent,
		Active:         true,
		ReplacedByHash: p.PredecessorHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := createSessionLua.Run(ctx, r.redis,
		[]string{r.recordKey(s.TokenHash), r.userKey(s.UserID), r.expiryKey()},
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt.UnixMilli(), s.CreatedByIP, s.UserAgent, s.ReplacedByHash, now.UnixMilli(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("session repository: create: %w", err)
	}
	if created == 0 {
		return nil, ErrDuplicateCredential
	}
	return s, nil
}

// FindByToken returns the record for the hash of rawToken, or nil if not found.
func (r *RedisRepository) FindByToken(ctx context.Context, rawToken string) (*domain.Session, error) {
	if rawToken == "" {
		return nil, nil
	}
	return r.GetByHash(ctx, security.HashRefreshToken(rawToken))
}

// GetByHash returns the record with tokenHash, or nil if not found.
func (r *RedisRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.recordKey(tokenHash)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return hashToDomain(fields)
}

// ListByUser returns all records for userID, newest first.
func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	hashes, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return []*domain.Session{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, r.recordKey(h))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		s, err := hashToDomain(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Revoke sets s inactive. A nil or already inactive session is a no-op.
func (r *RedisRepository) Revoke(ctx context.Context, s *domain.Session) error {
	if s == nil {
		return nil
	}
	if _, err := r.RevokeIfActive(ctx, s.TokenHash); err != nil {
		return err
	}
	s.Active = false
	return nil
}

// RevokeIfActive flips the record's active field from "1" to "0" inside one script.
func (r *RedisRepository) RevokeIfActive(ctx context.Context, tokenHash string) (bool, error) {
	n, err := revokeIfActiveLua.Run(ctx, r.redis,
		[]string{r.recordKey(tokenHash), r.inactiveKey()},
		tokenHash, r.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAllForUser sets every active record of userID inactive.
func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return revokeAllForUserLua.Run(ctx, r.redis,
		[]string{r.userKey(userID), r.inactiveKey()},
		r.recordPrefix(), r.now().UnixMilli(),
	).Int64()
}

// PurgeExpiredOrInactive deletes records with expires_at before now or revoked, and drops them from the indexes.
func (r *RedisRepository) PurgeExpiredOrInactive(ctx context.Context, now time.Time) (int64, error) {
	return purgeLua.Run(ctx, r.redis,
		[]string{r.expiryKey(), r.inactiveKey()},
		r.recordPrefix(), now.UnixMilli(), r.userPrefix(),
	).Int64()
}

func hashToDomain(f map[string]string) (*domain.Session, error) {
	expires, err := parseMillis(f["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("session repository: corrupt record %s: %w", f["token_hash"], err)
	}
	created, err := parseMillis(f["created_at"])
	if err != nil {
		return nil, fmt.Errorf("session repository: corrupt record %s: %w", f["token_hash"], err)
	}
	updated, err := parseMillis(f["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("session repository: corrupt record %s: %w", f["token_hash"], err)
	}
	return &domain.Session{
		ID:             f["id"],
		UserID:         f["user_id"],
		TokenHash:      f["token_hash"],
		ExpiresAt:      expires,
		CreatedByIP:    f["created_by_ip"],
		UserAgent:      f["user_agent"],
		Active:         f["active"] == "1",
		ReplacedByHash: f["replaced_by_hash"],
		CreatedAt:      created,
		UpdatedAt:      updated,
	}, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
