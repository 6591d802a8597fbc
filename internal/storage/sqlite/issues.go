package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sandevgo/kaidesk/internal/core"
)

// Issues is the learning log: questions the assistant could not answer
// well, kept for review.
type Issues struct {
	db *sql.DB
}

func NewIssues(db *sql.DB) *Issues {
	return &Issues{db: db}
}

func (i *Issues) LogIssue(ctx context.Context, issue core.Issue) error {
	query := `INSERT INTO issues (kind, question, response) VALUES (?, ?, ?)`
	if _, err := i.db.ExecContext(ctx, query, string(issue.Type), issue.Question, issue.Response); err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// RecentIssues returns up to limit issues of the given kind, oldest first.
func (i *Issues) RecentIssues(ctx context.Context, kind core.IssueType, limit int) ([]core.Issue, error) {
	query := `
	SELECT id, kind, question, response, created_at
	FROM issues WHERE kind = ? ORDER BY id DESC LIMIT ?`

	rows, err := i.db.QueryContext(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	items := make([]core.Issue, 0, limit)
	for rows.Next() {
		var it core.Issue
		var k string
		if err := rows.Scan(&it.ID, &k, &it.Question, &it.Response, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		it.Type = core.IssueType(k)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest were fetched first; hand them back chronologically.
	for l, r := 0, len(items)-1; l < r; l, r = l+1, r-1 {
		items[l], items[r] = items[r], items[l]
	}
	return items, nil
}

func (i *Issues) CountIssues(ctx context.Context, kind core.IssueType) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE kind = ?`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return n, nil
}
