package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const gradeScaleKey = "grade_scale"

// ErrGradeScaleMismatch is returned when a deployment is started with a grade
// scale other than the one its stored results were graded with.
var ErrGradeScaleMismatch = errors.New("grade scale mismatch")

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployment_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a key, or "" if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM deployment_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// EnsureGradeScale records scale on first use and rejects a different scale
// afterwards, so every stored grade comes from the same table.
func (s *Store) EnsureGradeScale(ctx context.Context, scale string) error {
	stored, err := s.GetMetadata(ctx, gradeScaleKey)
	if err != nil {
		return fmt.Errorf("read grade scale: %w", err)
	}
	switch stored {
	case "":
		return s.SetMetadata(ctx, gradeScaleKey, scale)
	case scale:
		return nil
	default:
		return fmt.Errorf("%w: database uses %q, configured %q", ErrGradeScaleMismatch, stored, scale)
	}
}
