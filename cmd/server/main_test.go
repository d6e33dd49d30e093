package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/social-media-api/internal/config"
	"github.com/iliyamo/social-media-api/internal/repository"
)

func TestNewTokenStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s, err := newTokenStore(config.StoreMySQL, db, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &repository.TokenRepo{}, s)

	s, err = newTokenStore(config.StoreRedis, nil, rdb, "tok")
	require.NoError(t, err)
	assert.IsType(t, &repository.RedisTokenRepo{}, s)

	s, err = newTokenStore(config.StoreMemory, nil, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryTokenRepo{}, s)

	_, err = newTokenStore(config.StoreRedis, db, nil, "")
	require.Error(t, err)
	_, err = newTokenStore("etcd", db, rdb, "")
	require.Error(t, err)
}

func TestGenSecret(t *testing.T) {
	var out bytes.Buffer
	genSecretCmd.SetOut(&out)
	require.NoError(t, genSecretCmd.RunE(genSecretCmd, nil))

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = newSecret(16)
	require.Error(t, err)
}

type orderedWriter struct {
	mu     sync.Mutex
	closed bool
	late   bool
}

func (w *orderedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.late = true
	}
	return len(p), nil
}

func (w *orderedWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func TestCloseAuditLogWaitsForConsumer(t *testing.T) {
	ctx, stop := context.WithCancel(context.Background())
	w := &orderedWriter{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		_, _ = w.Write([]byte("final line\n"))
	}()

	require.NoError(t, closeAuditLog(stop, done, w))
	assert.True(t, w.closed)
	assert.False(t, w.late)
}
