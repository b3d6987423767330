package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// APITokenTTL is how long an issued API token stays valid.
const APITokenTTL = 24 * time.Hour

// AuthSession is an issued API token.
type AuthSession struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateAuthSession issues a new API token for a user.
func (s *Store) CreateAuthSession(ctx context.Context, userID int64) (AuthSession, error) {
	token, err := generateToken()
	if err != nil {
		return AuthSession{}, err
	}
	now := time.Now().UTC()
	sess := AuthSession{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(APITokenTTL)}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return AuthSession{}, err
	}
	return sess, nil
}

// GetAuthSession returns the session for token, or nil if it is unknown or expired.
func (s *Store) GetAuthSession(ctx context.Context, token string) (*AuthSession, error) {
	var sess AuthSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(ctx, token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession revokes a token.
func (s *Store) DeleteAuthSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired tokens.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
