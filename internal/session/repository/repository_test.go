package repository

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xboybx/Authentication-System/internal/db"
	"github.com/xboybx/Authentication-System/internal/db/migrate"
	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/session/domain"
)

// fixture is one Repository implementation plus a way to satisfy its user foreign key.
type fixture struct {
	repo    Repository
	addUser func(t *testing.T, id string)
}

func newSQLFixture(t *testing.T) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	require.NoError(t, migrate.Run(db.DriverSQLite, path, "up"))
	conn, err := db.Open(context.Background(), db.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return fixture{
		repo: NewSQLRepository(conn),
		addUser: func(t *testing.T, id string) {
			now := time.Now().UTC()
			_, err := conn.Exec(`INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, 'user', TRUE, ?, ?)`, id, id, id+"@example.com", "x", now, now)
			require.NoError(t, err)
		},
	}
}

func newRedisFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return fixture{
		repo:    NewRedisRepository(rdb, "test"),
		addUser: func(*testing.T, string) {},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, f fixture)) {
	t.Run("sql", func(t *testing.T) { fn(t, newSQLFixture(t)) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisFixture(t)) })
}

func params(raw, userID string, expiresIn time.Duration) domain.CreateParams {
	return domain.CreateParams{
		RawToken:  raw,
		UserID:    userID,
		ExpiresAt: time.Now().Add(expiresIn).Truncate(time.Second),
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	}
}

func TestRepository_CreateAndFind(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		p := params("raw-refresh-token-1", "u1", time.Hour)

		created, err := f.repo.Create(ctx, p)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, security.HashRefreshToken(p.RawToken), created.TokenHash)
		assert.True(t, created.Active)
		assert.Empty(t, created.ReplacedByHash)

		found, err := f.repo.FindByToken(ctx, p.RawToken)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "u1", found.UserID)
		assert.Equal(t, "10.0.0.1", found.CreatedByIP)
		assert.Equal(t, "test-agent", found.UserAgent)
		assert.True(t, found.Active)
		assert.True(t, p.ExpiresAt.Equal(found.ExpiresAt), "ExpiresAt = %v, want %v", found.ExpiresAt, p.ExpiresAt)
	})
}

func TestRepository_HashOnlyStorage(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		raw := "raw-refresh-token-never-stored"
		_, err := f.repo.Create(ctx, params(raw, "u1", time.Hour))
		require.NoError(t, err)

		s, err := f.repo.FindByToken(ctx, raw)
		require.NoError(t, err)
		for _, field := range []string{s.ID, s.UserID, s.TokenHash, s.CreatedByIP, s.UserAgent, s.ReplacedByHash} {
			assert.NotContains(t, field, raw)
		}
	})
}

func TestRepository_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		s, err := f.repo.FindByToken(ctx, "never-issued")
		require.NoError(t, err)
		assert.Nil(t, s)

		s, err = f.repo.FindByToken(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, s)

		s, err = f.repo.GetByHash(ctx, security.HashRefreshToken("never-issued"))
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestRepository_DuplicateCredential(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		_, err := f.repo.Create(ctx, params("same-raw", "u1", time.Hour))
		require.NoError(t, err)

		_, err = f.repo.Create(ctx, params("same-raw", "u1", time.Hour))
		assert.ErrorIs(t, err, ErrDuplicateCredential)
	})
}

func TestRepository_RevokeIfActiveOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		s, err := f.repo.Create(ctx, params("cas-token", "u1", time.Hour))
		require.NoError(t, err)

		won, err := f.repo.RevokeIfActive(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = f.repo.RevokeIfActive(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.False(t, won, "second revoke must not win")

		won, err = f.repo.RevokeIfActive(ctx, security.HashRefreshToken("missing"))
		require.NoError(t, err)
		assert.False(t, won)

		got, err := f.repo.GetByHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})
}

func TestRepository_RevokeIfActiveConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		s, err := f.repo.Create(ctx, params("race-token", "u1", time.Hour))
		require.NoError(t, err)

		const callers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				won, err := f.repo.RevokeIfActive(ctx, s.TokenHash)
				if err != nil {
					t.Errorf("RevokeIfActive: %v", err)
					return
				}
				if won {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestRepository_RevokeIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		s, err := f.repo.Create(ctx, params("logout-token", "u1", time.Hour))
		require.NoError(t, err)

		require.NoError(t, f.repo.Revoke(ctx, s))
		assert.False(t, s.Active)
		require.NoError(t, f.repo.Revoke(ctx, s))
		require.NoError(t, f.repo.Revoke(ctx, nil))

		got, err := f.repo.FindByToken(ctx, "logout-token")
		require.NoError(t, err)
		assert.False(t, got.Active)
	})
}

func TestRepository_RevokeAllForUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		f.addUser(t, "u2")
		for _, raw := range []string{"a", "b", "c"} {
			_, err := f.repo.Create(ctx, params("u1-"+raw, "u1", time.Hour))
			require.NoError(t, err)
		}
		already, err := f.repo.FindByToken(ctx, "u1-c")
		require.NoError(t, err)
		require.NoError(t, f.repo.Revoke(ctx, already))
		_, err = f.repo.Create(ctx, params("u2-a", "u2", time.Hour))
		require.NoError(t, err)

		n, err := f.repo.RevokeAllForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		list, err := f.repo.ListByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		for _, s := range list {
			assert.False(t, s.Active, "session %s still active", s.ID)
		}

		other, err := f.repo.FindByToken(ctx, "u2-a")
		require.NoError(t, err)
		assert.True(t, other.Active, "other user's session revoked")

		n, err = f.repo.RevokeAllForUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestRepository_ChainLinksPredecessor(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")
		first, err := f.repo.Create(ctx, params("gen-1", "u1", time.Hour))
		require.NoError(t, err)
		won, err := f.repo.RevokeIfActive(ctx, first.TokenHash)
		require.NoError(t, err)
		require.True(t, won)

		p := params("gen-2", "u1", time.Hour)
		p.PredecessorHash = first.TokenHash
		second, err := f.repo.Create(ctx, p)
		require.NoError(t, err)

		got, err := f.repo.FindByToken(ctx, "gen-2")
		require.NoError(t, err)
		assert.Equal(t, first.TokenHash, got.ReplacedByHash)
		assert.Equal(t, second.ID, got.ID)

		pred, err := f.repo.GetByHash(ctx, got.ReplacedByHash)
		require.NoError(t, err)
		require.NotNil(t, pred)
		assert.False(t, pred.Active)
	})
}

func TestRepository_PurgeExpiredOrInactive(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addUser(t, "u1")

		// Purged: one expired, two revoked (one of them the predecessor of a survivor).
		_, err := f.repo.Create(ctx, params("expired", "u1", -time.Hour))
		require.NoError(t, err)
		revoked, err := f.repo.Create(ctx, params("revoked", "u1", time.Hour))
		require.NoError(t, err)
		require.NoError(t, f.repo.Revoke(ctx, revoked))
		pred, err := f.repo.Create(ctx, params("predecessor", "u1", time.Hour))
		require.NoError(t, err)
		_, err = f.repo.RevokeIfActive(ctx, pred.TokenHash)
		require.NoError(t, err)

		// Survivors.
		succ := params("successor", "u1", time.Hour)
		succ.PredecessorHash = pred.TokenHash
		_, err = f.repo.Create(ctx, succ)
		require.NoError(t, err)
		_, err = f.repo.Create(ctx, params("live", "u1", 2*time.Hour))
		require.NoError(t, err)

		n, err := f.repo.PurgeExpiredOrInactive(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		for _, raw := range []string{"expired", "revoked", "predecessor"} {
			s, err := f.repo.FindByToken(ctx, raw)
			require.NoError(t, err)
			assert.Nil(t, s, "%s should be purged", raw)
		}
		survivor, err := f.repo.FindByToken(ctx, "successor")
		require.NoError(t, err)
		require.NotNil(t, survivor)
		assert.Equal(t, pred.TokenHash, survivor.ReplacedByHash)
		assert.True(t, survivor.Active)

		list, err := f.repo.ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		n, err = f.repo.PurgeExpiredOrInactive(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestRepository_ListByUserEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		list, err := f.repo.ListByUser(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestRepository_CreateRequiresTokenAndUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		_, err := f.repo.Create(context.Background(), domain.CreateParams{UserID: "u1"})
		assert.Error(t, err)
		_, err = f.repo.Create(context.Background(), domain.CreateParams{RawToken: "x"})
		assert.Error(t, err)
	})
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewRedisRepository(rdb, "auth")

	s, err := repo.Create(context.Background(), params("layout-token", "u1", time.Hour))
	require.NoError(t, err)

	assert.True(t, mr.Exists("auth:rs:"+s.TokenHash))
	members, err := mr.Members("auth:rs:user:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{s.TokenHash}, members)
	for _, k := range mr.Keys() {
		assert.False(t, strings.Contains(k, "layout-token"), "raw token in key %s", k)
	}
	assert.Equal(t, "1", mr.HGet("auth:rs:"+s.TokenHash, "active"))
}
