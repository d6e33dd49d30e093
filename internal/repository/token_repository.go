package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/social-media-api/internal/model"
)

// tokenTables maps each token kind onto its table. Both tables carry a
// UNIQUE key on user_id, which is what keeps one record per user.
var tokenTables = map[model.TokenKind]string{
	model.KindAccess:  "access_tokens",
	model.KindRefresh: "refresh_tokens",
}

// TokenRepo persists access and refresh tokens in MySQL, one row per user
// per kind.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

func tableFor(kind model.TokenKind) (string, error) {
	t, ok := tokenTables[kind]
	if !ok {
		return "", fmt.Errorf("repository: unknown token kind %q", kind)
	}
	return t, nil
}

// Save inserts a new token row. A duplicate user_id yields ErrTokenExists.
func (r *TokenRepo) Save(ctx context.Context, t model.StoredToken) (model.StoredToken, error) {
	table, err := tableFor(t.Kind)
	if err != nil {
		return model.StoredToken{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (user_id, token, issued_at, expires_at) VALUES (?,?,?,?)",
		t.UserID, t.Token, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		if isDuplicate(err) {
			return model.StoredToken{}, ErrTokenExists
		}
		return model.StoredToken{}, fmt.Errorf("save %s token: %w", t.Kind, err)
	}
	return t, nil
}

// UpsertByUserID overwrites the user's row or inserts it when absent, in a
// single statement so concurrent writers resolve as last-write-wins.
func (r *TokenRepo) UpsertByUserID(ctx context.Context, t model.StoredToken) (model.StoredToken, error) {
	table, err := tableFor(t.Kind)
	if err != nil {
		return model.StoredToken{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (user_id, token, issued_at, expires_at) VALUES (?,?,?,?) "+
			"ON DUPLICATE KEY UPDATE token=VALUES(token), issued_at=VALUES(issued_at), expires_at=VALUES(expires_at)",
		t.UserID, t.Token, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return model.StoredToken{}, fmt.Errorf("upsert %s token: %w", t.Kind, err)
	}
	return t, nil
}

// FindByUserID returns the user's token of the given kind.
func (r *TokenRepo) FindByUserID(ctx context.Context, kind model.TokenKind, userID uint64) (model.StoredToken, error) {
	table, err := tableFor(kind)
	if err != nil {
		return model.StoredToken{}, err
	}
	t := model.StoredToken{Kind: kind}
	err = r.DB.QueryRowContext(ctx,
		"SELECT user_id, token, issued_at, expires_at FROM "+table+" WHERE user_id=? LIMIT 1",
		userID).Scan(&t.UserID, &t.Token, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StoredToken{}, ErrTokenNotFound
		}
		return model.StoredToken{}, fmt.Errorf("find %s token: %w", kind, err)
	}
	return t, nil
}

// Delete removes the user's token of the given kind.
func (r *TokenRepo) Delete(ctx context.Context, kind model.TokenKind, userID uint64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id=?", userID)
	if err != nil {
		return fmt.Errorf("delete %s token: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s token: %w", kind, err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
