package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/iliyamo/social-media-api/internal/model"
)

type memoryKey struct {
	kind   model.TokenKind
	userID uint64
}

// MemoryTokenRepo is a process-local token store for development and tests.
// Sessions do not survive a restart and are not shared between instances.
type MemoryTokenRepo struct {
	mu     sync.RWMutex
	tokens map[memoryKey]model.StoredToken
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[memoryKey]model.StoredToken)}
}

func (r *MemoryTokenRepo) Save(_ context.Context, t model.StoredToken) (model.StoredToken, error) {
	if !t.Kind.Valid() {
		return model.StoredToken{}, fmt.Errorf("repository: unknown token kind %q", t.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{t.Kind, t.UserID}
	if _, ok := r.tokens[k]; ok {
		return model.StoredToken{}, ErrTokenExists
	}
	r.tokens[k] = t
	return t, nil
}

func (r *MemoryTokenRepo) UpsertByUserID(_ context.Context, t model.StoredToken) (model.StoredToken, error) {
	if !t.Kind.Valid() {
		return model.StoredToken{}, fmt.Errorf("repository: unknown token kind %q", t.Kind)
	}
	r.mu.Lock()
	r.tokens[memoryKey{t.Kind, t.UserID}] = t
	r.mu.Unlock()
	return t, nil
}

func (r *MemoryTokenRepo) FindByUserID(_ context.Context, kind model.TokenKind, userID uint64) (model.StoredToken, error) {
	r.mu.RLock()
	t, ok := r.tokens[memoryKey{kind, userID}]
	r.mu.RUnlock()
	if !ok {
		return model.StoredToken{}, ErrTokenNotFound
	}
	return t, nil
}

func (r *MemoryTokenRepo) Delete(_ context.Context, kind model.TokenKind, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{kind, userID}
	if _, ok := r.tokens[k]; !ok {
		return ErrTokenNotFound
	}
	delete(r.tokens, k)
	return nil
}

// Len returns the number of stored records across both kinds.
func (r *MemoryTokenRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
