package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/evaluator/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		owner_id INTEGER NOT NULL DEFAULT 0,
		subject TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL,
		answers TEXT NOT NULL,
		evaluation TEXT,
		percentage REAL,
		grade TEXT,
		reviewed_by INTEGER,
		reviewed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_owner ON submissions(owner_id);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS deployment_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const submissionColumns = `id, exam_id, student_id, owner_id, subject, questions, answers,
	evaluation, reviewed_by, reviewed_at, created_at, updated_at`

// CreateSubmission stores a new submission under a fresh UUID and returns it.
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	now := time.Now().UTC()
	sub.ID = uuid.NewString()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	questions, answers, evaluation, err := encodeSubmission(sub)
	if err != nil {
		return model.Submission{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, exam_id, student_id, owner_id, subject, questions, answers,
		 evaluation, percentage, grade, reviewed_by, reviewed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExamID, sub.StudentID, sub.OwnerID, sub.Subject, questions, answers,
		evaluation, percentageOf(sub), gradeOf(sub), sub.ReviewedBy, sub.ReviewedAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return model.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

// GetByID returns a submission. The boolean is false when no row matches.
func (s *Store) GetByID(ctx context.Context, id string) (model.Submission, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, false, nil
	}
	if err != nil {
		return model.Submission{}, false, err
	}
	return sub, true, nil
}

// Save overwrites the mutable fields of an existing submission.
func (s *Store) Save(ctx context.Context, sub model.Submission) error {
	questions, answers, evaluation, err := encodeSubmission(sub)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET questions = ?, answers = ?, evaluation = ?, percentage = ?, grade = ?,
		 reviewed_by = ?, reviewed_at = ?, updated_at = ? WHERE id = ?`,
		questions, answers, evaluation, percentageOf(sub), gradeOf(sub),
		sub.ReviewedBy, sub.ReviewedAt, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update submission %s: %w", sub.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", sub.ID, ErrNotFound)
	}
	return nil
}

// ListSubmissions returns submissions newest first. A zero ownerID lists all.
func (s *Store) ListSubmissions(ctx context.Context, ownerID int64) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if ownerID != 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Evaluations returns the stored evaluation of every graded submission.
// A zero ownerID covers all owners.
func (s *Store) Evaluations(ctx context.Context, ownerID int64) ([]model.SubmissionEvaluation, error) {
	subs, err := s.ListSubmissions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var evals []model.SubmissionEvaluation
	for _, sub := range subs {
		if sub.Evaluation != nil {
			evals = append(evals, *sub.Evaluation)
		}
	}
	return evals, nil
}

// SubmissionCount returns the total number of submissions.
func (s *Store) SubmissionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (model.Submission, error) {
	var (
		sub                model.Submission
		questions, answers string
		evaluation         sql.NullString
		reviewedBy         sql.NullInt64
		reviewedAt         sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.OwnerID, &sub.Subject, &questions, &answers,
		&evaluation, &reviewedBy, &reviewedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return model.Submission{}, err
	}
	if err := json.Unmarshal([]byte(questions), &sub.Questions); err != nil {
		return model.Submission{}, fmt.Errorf("decode questions of %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return model.Submission{}, fmt.Errorf("decode answers of %s: %w", sub.ID, err)
	}
	if evaluation.Valid {
		var ev model.SubmissionEvaluation
		if err := json.Unmarshal([]byte(evaluation.String), &ev); err != nil {
			return model.Submission{}, fmt.Errorf("decode evaluation of %s: %w", sub.ID, err)
		}
		sub.Evaluation = &ev
	}
	if reviewedBy.Valid {
		sub.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		sub.ReviewedAt = &reviewedAt.Time
	}
	return sub, nil
}

func encodeSubmission(sub model.Submission) (questions, answers string, evaluation sql.NullString, err error) {
	q, err := json.Marshal(sub.Questions)
	if err != nil {
		return "", "", evaluation, fmt.Errorf("encode questions: %w", err)
	}
	a, err := json.Marshal(sub.Answers)
	if err != nil {
		return "", "", evaluation, fmt.Errorf("encode answers: %w", err)
	}
	if sub.Evaluation != nil {
		e, err := json.Marshal(sub.Evaluation)
		if err != nil {
			return "", "", evaluation, fmt.Errorf("encode evaluation: %w", err)
		}
		evaluation = sql.NullString{String: string(e), Valid: true}
	}
	return string(q), string(a), evaluation, nil
}

func percentageOf(sub model.Submission) sql.NullFloat64 {
	if sub.Evaluation == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: sub.Evaluation.Percentage, Valid: true}
}

func gradeOf(sub model.Submission) sql.NullString {
	if sub.Evaluation == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: sub.Evaluation.Grade, Valid: true}
}
