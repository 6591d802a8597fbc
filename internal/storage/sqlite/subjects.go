package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
)

const breakdownLimit = 10

var _ core.RecordStore = (*Subjects)(nil)

// Subjects is the record store. Source attributes are kept verbatim as a
// JSON object so the schema mapping can be resolved against real columns.
type Subjects struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSubjects(db *sql.DB, timeout time.Duration) *Subjects {
	return &Subjects{db: db, timeout: timeout}
}

// SubjectRow is a single record as imported.
type SubjectRow struct {
	SubjectID   string
	DisplayName string
	SecretHash  string
	Attributes  core.Record
}

func (s *Subjects) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Upsert inserts or replaces a subject. An empty SecretHash keeps the stored one.
func (s *Subjects) Upsert(ctx context.Context, row SubjectRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id := strings.TrimSpace(row.SubjectID)
	if id == "" {
		return fmt.Errorf("subject id is required")
	}

	attrs := row.Attributes
	if attrs == nil {
		attrs = core.Record{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
	INSERT INTO subjects (subject_id, display_name, secret_hash, attributes, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(subject_id) DO UPDATE SET
		display_name = excluded.display_name,
		secret_hash = CASE WHEN excluded.secret_hash = '' THEN subjects.secret_hash ELSE excluded.secret_hash END,
		attributes = excluded.attributes,
		updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.ExecContext(ctx, query, id, strings.TrimSpace(row.DisplayName), row.SecretHash, string(attrsJSON)); err != nil {
		return fmt.Errorf("failed to upsert subject: %w", err)
	}
	return nil
}

// SetSecretHash replaces the step-up secret of an existing subject.
func (s *Subjects) SetSecretHash(ctx context.Context, subjectID, hash string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE subjects SET secret_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE subject_id = ?`,
		hash, strings.TrimSpace(subjectID))
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Verify reports whether the identifier exists and the display name matches,
// ignoring case and surrounding whitespace.
func (s *Subjects) Verify(ctx context.Context, subjectID, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT display_name FROM subjects WHERE subject_id = ?`,
		strings.TrimSpace(subjectID)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query subject: %w", err)
	}

	want := strings.TrimSpace(name)
	return want != "" && strings.EqualFold(strings.TrimSpace(stored), want), nil
}

func (s *Subjects) Lookup(ctx context.Context, subjectID string) (core.Record, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var attrsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT attributes FROM subjects WHERE subject_id = ?`,
		strings.TrimSpace(subjectID)).Scan(&attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query subject: %w", err)
	}

	rec := core.Record{}
	if err := json.Unmarshal([]byte(attrsJSON), &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return rec, true, nil
}

func (s *Subjects) SecretHash(ctx context.Context, subjectID string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT secret_hash FROM subjects WHERE subject_id = ?`,
		strings.TrimSpace(subjectID)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query secret: %w", err)
	}
	if hash == "" {
		return "", false, nil
	}
	return hash, true, nil
}

// Columns lists every attribute key present in the store.
func (s *Subjects) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT j.key FROM subjects, json_each(subjects.attributes) AS j`)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(cols)
	return cols, nil
}

// Stats returns the subject total and, per requested column, the most
// frequent values. Columns absent from every record yield empty breakdowns.
func (s *Subjects) Stats(ctx context.Context, breakdownColumns []string) (core.Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := core.Stats{Breakdowns: make(map[string]map[string]int, len(breakdownColumns))}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`).Scan(&stats.Total); err != nil {
		return core.Stats{}, fmt.Errorf("failed to count subjects: %w", err)
	}

	query := `
	SELECT CAST(json_extract(attributes, '$."' || ? || '"') AS TEXT) AS v, COUNT(*) AS n
	FROM subjects
	WHERE v IS NOT NULL AND v != ''
	GROUP BY v
	ORDER BY n DESC, v ASC
	LIMIT ?`

	for _, col := range breakdownColumns {
		counts, err := s.breakdown(ctx, query, col)
		if err != nil {
			return core.Stats{}, err
		}
		stats.Breakdowns[col] = counts
	}

	return stats, nil
}

func (s *Subjects) breakdown(ctx context.Context, query, col string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, col, breakdownLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query breakdown for %s: %w", col, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown: %w", err)
		}
		counts[value] = n
	}
	return counts, rows.Err()
}
