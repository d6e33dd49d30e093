package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/social-media-api/internal/model"
)

type tokenStore interface {
	Save(ctx context.Context, t model.StoredToken) (model.StoredToken, error)
	UpsertByUserID(ctx context.Context, t model.StoredToken) (model.StoredToken, error)
	FindByUserID(ctx context.Context, kind model.TokenKind, userID uint64) (model.StoredToken, error)
	Delete(ctx context.Context, kind model.TokenKind, userID uint64) error
}

func newRedisRepo(t *testing.T) (*RedisTokenRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisTokenRepo(rdb, "test")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	return repo, mr
}

func storeImplementations(t *testing.T) map[string]tokenStore {
	redisRepo, _ := newRedisRepo(t)
	return map[string]tokenStore{
		"memory": NewMemoryTokenRepo(),
		"redis":  redisRepo,
	}
}

func TestTokenStoreContract(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := sampleToken(model.KindRefresh)

			_, err := store.FindByUserID(ctx, model.KindRefresh, first.UserID)
			require.ErrorIs(t, err, ErrTokenNotFound)

			_, err = store.Save(ctx, first)
			require.NoError(t, err)
			_, err = store.Save(ctx, first)
			require.ErrorIs(t, err, ErrTokenExists)

			got, err := store.FindByUserID(ctx, model.KindRefresh, first.UserID)
			require.NoError(t, err)
			assert.Equal(t, first.Token, got.Token)
			assert.True(t, first.ExpiresAt.Equal(got.ExpiresAt))

			second := first
			second.Token = "signed.refresh.v2"
			second.IssuedAt = first.IssuedAt.Add(time.Minute)
			_, err = store.UpsertByUserID(ctx, second)
			require.NoError(t, err)

			got, err = store.FindByUserID(ctx, model.KindRefresh, first.UserID)
			require.NoError(t, err)
			assert.Equal(t, "signed.refresh.v2", got.Token)
			assert.True(t, second.IssuedAt.Equal(got.IssuedAt))

			_, err = store.FindByUserID(ctx, model.KindAccess, first.UserID)
			require.ErrorIs(t, err, ErrTokenNotFound)

			require.NoError(t, store.Delete(ctx, model.KindRefresh, first.UserID))
			require.ErrorIs(t, store.Delete(ctx, model.KindRefresh, first.UserID), ErrTokenNotFound)
		})
	}
}

func TestTokenStoreUpsertInsertsWhenAbsent(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tok := sampleToken(model.KindAccess)

			_, err := store.UpsertByUserID(ctx, tok)
			require.NoError(t, err)
			got, err := store.FindByUserID(ctx, model.KindAccess, tok.UserID)
			require.NoError(t, err)
			assert.Equal(t, tok.Token, got.Token)
		})
	}
}

func TestTokenStoreConcurrentUpsertKeepsOneRecord(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					tok := sampleToken(model.KindRefresh)
					tok.Token = "signed." + string(rune('a'+i))
					_, _ = store.UpsertByUserID(ctx, tok)
				}(i)
			}
			wg.Wait()

			got, err := store.FindByUserID(ctx, model.KindRefresh, 7)
			require.NoError(t, err)
			assert.Contains(t, got.Token, "signed.")
			require.NoError(t, store.Delete(ctx, model.KindRefresh, 7))
			require.ErrorIs(t, store.Delete(ctx, model.KindRefresh, 7), ErrTokenNotFound)
		})
	}
}

func TestRedisTokenRepoKeyExpiresWithToken(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	tok := sampleToken(model.KindAccess)

	_, err := repo.Save(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, mr.TTL("test:access:7"))

	mr.FastForward(11 * time.Minute)
	_, err = repo.FindByUserID(ctx, model.KindAccess, tok.UserID)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRedisTokenRepoRejectsUnknownKind(t *testing.T) {
	repo, _ := newRedisRepo(t)

	_, err := repo.Save(context.Background(), model.StoredToken{Kind: "id", UserID: 1})
	require.Error(t, err)
}

func TestMemoryTokenRepoLen(t *testing.T) {
	repo := NewMemoryTokenRepo()
	ctx := context.Background()

	_, err := repo.UpsertByUserID(ctx, sampleToken(model.KindAccess))
	require.NoError(t, err)
	_, err = repo.UpsertByUserID(ctx, sampleToken(model.KindRefresh))
	require.NoError(t, err)
	_, err = repo.UpsertByUserID(ctx, sampleToken(model.KindRefresh))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())
}
