// Package sqlite implements the storage contracts on SQLite via mattn/go-sqlite3.
// The schema is a versioned set of embedded migrations applied at open time.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a SQLite backed storage.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed, applies pragmas and migrations,
// and returns a ready store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so read-modify-write
	// transitions on one evaluation cannot interleave.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle, applying pragmas and migrations.
func New(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "sqlite_store")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

const evaluationColumns = `id, owner_id, state, elapsed_minutes, score, artifact_ref, failure_reason,
	dispatch_attempts, created_at, updated_at, completed_at, scored_at, customization`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*domain.Evaluation, error) {
	var (
		e           domain.Evaluation
		state       string
		elapsed     sql.NullFloat64
		score       sql.NullFloat64
		artifactRef sql.NullString
		completedAt sql.NullTime
		scoredAt    sql.NullTime
	)
	if err := row.Scan(
		&e.ID, &e.OwnerID, &state, &elapsed, &score, &artifactRef, &e.FailureReason,
		&e.DispatchAttempts, &e.CreatedAt, &e.UpdatedAt, &completedAt, &scoredAt, &e.Customization,
	); err != nil {
		return nil, err
	}
	e.State = domain.EvaluationState(state)
	if elapsed.Valid {
		e.ElapsedMinutes = &elapsed.Float64
	}
	if score.Valid {
		e.Score = &score.Float64
	}
	if artifactRef.Valid {
		e.ArtifactRef = &artifactRef.String
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		e.CompletedAt = &t
	}
	if scoredAt.Valid {
		t := scoredAt.Time.UTC()
		e.ScoredAt = &t
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

// CreateEvaluation implements storage.EvaluationRepository.
func (s *Store) CreateEvaluation(ctx context.Context, e *domain.Evaluation) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, string(e.State), nullFloat(e.ElapsedMinutes), nullFloat(e.Score),
		nullString(e.ArtifactRef), e.FailureReason, e.DispatchAttempts,
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(), nullTime(e.CompletedAt), nullTime(e.ScoredAt),
		e.Customization,
	)
	return domain.WrapStorage("insert evaluation", err)
}

// GetEvaluation implements storage.EvaluationRepository.
func (s *Store) GetEvaluation(ctx context.Context, id string) (*domain.Evaluation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	e, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.WrapStorage("get evaluation", err)
	}
	return e, nil
}

// UpdateEvaluation implements storage.EvaluationRepository. The read and the
// write share one immediate transaction.
func (s *Store) UpdateEvaluation(
	ctx context.Context, id string, fn storage.MutateFunc,
) (*domain.Evaluation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, domain.WrapStorage("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	current, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, false, domain.WrapStorage("load evaluation", err)
	}

	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return current, false, err
	}
	if !changed {
		return current, false, nil
	}
	if err := working.Validate(); err != nil {
		return current, false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE evaluations SET
		state = ?, elapsed_minutes = ?, score = ?, artifact_ref = ?, failure_reason = ?,
		dispatch_attempts = ?, updated_at = ?, completed_at = ?, scored_at = ?, customization = ?
		WHERE id = ?`,
		string(working.State), nullFloat(working.ElapsedMinutes), nullFloat(working.Score),
		nullString(working.ArtifactRef), working.FailureReason, working.DispatchAttempts,
		working.UpdatedAt.UTC(), nullTime(working.CompletedAt), nullTime(working.ScoredAt),
		working.Customization, id,
	); err != nil {
		return current, false, domain.WrapStorage("update evaluation", err)
	}
	if err := tx.Commit(); err != nil {
		return current, false, domain.WrapStorage("commit evaluation", err)
	}
	return working, true, nil
}

// ListEvaluations implements storage.EvaluationRepository.
func (s *Store) ListEvaluations(ctx context.Context, f storage.ListFilter) ([]*domain.Evaluation, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, f.UpdatedBefore.UTC())
	}
	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("list evaluations", err)
	}
	defer rows.Close()

	var out []*domain.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan evaluation", err)
		}
		out = append(out, e)
	}
	return out, domain.WrapStorage("iterate evaluations", rows.Err())
}

// UpsertAnswer implements storage.AnswerStore with a single atomic statement.
func (s *Store) UpsertAnswer(ctx context.Context, a domain.Answer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO answers (evaluation_id, question_index, text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (evaluation_id, question_index) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at`,
		a.EvaluationID, a.QuestionIndex, a.Text, a.UpdatedAt.UTC(),
	)
	return domain.WrapStorage("upsert answer", err)
}

// GetAnswers implements storage.AnswerStore.
func (s *Store) GetAnswers(ctx context.Context, evaluationID string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT evaluation_id, question_index, text, updated_at
		FROM answers WHERE evaluation_id = ? ORDER BY question_index`, evaluationID)
	if err != nil {
		return nil, domain.WrapStorage("get answers", err)
	}
	defer rows.Close()

	out := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.EvaluationID, &a.QuestionIndex, &a.Text, &a.UpdatedAt); err != nil {
			return nil, domain.WrapStorage("scan answer", err)
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		out = append(out, a)
	}
	return out, domain.WrapStorage("iterate answers", rows.Err())
}

// CountAnswers implements storage.AnswerStore.
func (s *Store) CountAnswers(ctx context.Context, evaluationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers WHERE evaluation_id = ?`, evaluationID).Scan(&n)
	if err != nil {
		return 0, domain.WrapStorage("count answers", err)
	}
	return n, nil
}

// PutAttachment implements storage.AttachmentStore. On conflict the existing
// row keeps its id and every other column takes the new values.
func (s *Store) PutAttachment(ctx context.Context, a domain.Attachment) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := a.ValidateRecord(); err != nil {
		return "", err
	}
	var id string
	err := s.db.QueryRowContext(ctx, `INSERT INTO attachments
		(id, evaluation_id, slot_index, storage_ref, kind, filename, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (evaluation_id, slot_index) DO UPDATE SET
			storage_ref = excluded.storage_ref,
			kind = excluded.kind,
			filename = excluded.filename,
			content_type = excluded.content_type,
			size = excluded.size,
			created_at = excluded.created_at
		RETURNING id`,
		a.ID, a.EvaluationID, a.SlotIndex, a.StorageRef, a.Kind, a.Filename, a.ContentType, a.Size,
		a.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return "", domain.WrapStorage("put attachment", err)
	}
	return id, nil
}

// ListAttachments implements storage.AttachmentStore.
func (s *Store) ListAttachments(ctx context.Context, evaluationID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, evaluation_id, slot_index, storage_ref, kind,
		filename, content_type, size, created_at
		FROM attachments WHERE evaluation_id = ? ORDER BY slot_index`, evaluationID)
	if err != nil {
		return nil, domain.WrapStorage("list attachments", err)
	}
	defer rows.Close()

	out := []domain.Attachment{}
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.EvaluationID, &a.SlotIndex, &a.StorageRef, &a.Kind,
			&a.Filename, &a.ContentType, &a.Size, &a.CreatedAt); err != nil {
			return nil, domain.WrapStorage("scan attachment", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, domain.WrapStorage("iterate attachments", rows.Err())
}

// LookupRespondent implements storage.RespondentDirectory.
func (s *Store) LookupRespondent(ctx context.Context, id string) (domain.RespondentProfile, error) {
	p := domain.RespondentProfile{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, organization, contact FROM respondents WHERE id = ?`, id,
	).Scan(&p.Name, &p.Organization, &p.Contact)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RespondentProfile{}, fmt.Errorf("respondent %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RespondentProfile{}, domain.WrapStorage("lookup respondent", err)
	}
	return p, nil
}

// UpsertRespondent writes a profile row. The profile system owns this table;
// the method exists for seeding and tests.
func (s *Store) UpsertRespondent(ctx context.Context, p domain.RespondentProfile) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO respondents (id, name, organization, contact)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			organization = excluded.organization,
			contact = excluded.contact`,
		p.ID, p.Name, p.Organization, p.Contact)
	if err != nil {
		s.logger.Warn("respondent upsert failed", "respondent_id", p.ID, "error", err)
	}
	return domain.WrapStorage("upsert respondent", err)
}
