package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/social-media-api/internal/model"
)

// RedisTokenRepo keeps one key per (kind, user). Every key expires together
// with the token it holds, so Redis never carries dead sessions.
type RedisTokenRepo struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type redisToken struct {
	UserID    uint64    `json:"uid"`
	Token     string    `json:"tok"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// NewRedisTokenRepo returns a Redis-backed token store. An empty prefix
// defaults to "tok".
func NewRedisTokenRepo(rdb *redis.Client, prefix string) *RedisTokenRepo {
	if prefix == "" {
		prefix = "tok"
	}
	return &RedisTokenRepo{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisTokenRepo) key(kind model.TokenKind, userID uint64) string {
	return r.prefix + ":" + string(kind) + ":" + strconv.FormatUint(userID, 10)
}

// ttl is the remaining lifetime of t, floored at one second so an already
// expired token is still written and then dropped by Redis.
func (r *RedisTokenRepo) ttl(t model.StoredToken) time.Duration {
	d := t.ExpiresAt.Sub(r.now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (r *RedisTokenRepo) encode(t model.StoredToken) ([]byte, error) {
	if !t.Kind.Valid() {
		return nil, fmt.Errorf("repository: unknown token kind %q", t.Kind)
	}
	return json.Marshal(redisToken{
		UserID:    t.UserID,
		Token:     t.Token,
		IssuedAt:  t.IssuedAt.UTC(),
		ExpiresAt: t.ExpiresAt.UTC(),
	})
}

// Save stores t only if the user has no token of that kind yet.
func (r *RedisTokenRepo) Save(ctx context.Context, t model.StoredToken) (model.StoredToken, error) {
	payload, err := r.encode(t)
	if err != nil {
		return model.StoredToken{}, err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(t.Kind, t.UserID), payload, r.ttl(t)).Result()
	if err != nil {
		return model.StoredToken{}, fmt.Errorf("save %s token: %w", t.Kind, err)
	}
	if !ok {
		return model.StoredToken{}, ErrTokenExists
	}
	return t, nil
}

// UpsertByUserID overwrites the user's key with a single SET.
func (r *RedisTokenRepo) UpsertByUserID(ctx context.Context, t model.StoredToken) (model.StoredToken, error) {
	payload, err := r.encode(t)
	if err != nil {
		return model.StoredToken{}, err
	}
	if err := r.rdb.Set(ctx, r.key(t.Kind, t.UserID), payload, r.ttl(t)).Err(); err != nil {
		return model.StoredToken{}, fmt.Errorf("upsert %s token: %w", t.Kind, err)
	}
	return t, nil
}

// FindByUserID loads the user's token of the given kind.
func (r *RedisTokenRepo) FindByUserID(ctx context.Context, kind model.TokenKind, userID uint64) (model.StoredToken, error) {
	bs, err := r.rdb.Get(ctx, r.key(kind, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.StoredToken{}, ErrTokenNotFound
		}
		return model.StoredToken{}, fmt.Errorf("find %s token: %w", kind, err)
	}
	var rt redisToken
	if err := json.Unmarshal(bs, &rt); err != nil {
		return model.StoredToken{}, fmt.Errorf("decode %s token: %w", kind, err)
	}
	return model.StoredToken{
		UserID:    rt.UserID,
		Kind:      kind,
		Token:     rt.Token,
		IssuedAt:  rt.IssuedAt,
		ExpiresAt: rt.ExpiresAt,
	}, nil
}

// Delete removes the user's token of the given kind.
func (r *RedisTokenRepo) Delete(ctx context.Context, kind model.TokenKind, userID uint64) error {
	n, err := r.rdb.Del(ctx, r.key(kind, userID)).Result()
	if err != nil {
		return fmt.Errorf("delete %s token: %w", kind, err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
