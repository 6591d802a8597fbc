package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/sandevgo/kaidesk/internal/core"
)

type Feedback struct {
	db *sql.DB
}

func NewFeedback(db *sql.DB) *Feedback {
	return &Feedback{db: db}
}

func (f *Feedback) SaveFeedback(ctx context.Context, fb core.Feedback) error {
	query := `INSERT INTO feedback (conversation_id, message, response, rating, comment) VALUES (?, ?, ?, ?, ?)`
	if _, err := f.db.ExecContext(ctx, query, fb.ConversationID, fb.Message, fb.Response, string(fb.Rating), fb.Comment); err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// FeedbackStats reports totals and the positive share as a percentage
// rounded to one decimal.
func (f *Feedback) FeedbackStats(ctx context.Context) (core.FeedbackStats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN rating = 'positive' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN rating = 'negative' THEN 1 ELSE 0 END), 0)
	FROM feedback`

	var st core.FeedbackStats
	if err := f.db.QueryRowContext(ctx, query).Scan(&st.Total, &st.Positive, &st.Negative); err != nil {
		return core.FeedbackStats{}, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	if st.Total > 0 {
		st.SatisfactionRate = math.Round(float64(st.Positive)/float64(st.Total)*1000) / 10
	}
	return st, nil
}

// RecentFeedback returns the newest entries first.
func (f *Feedback) RecentFeedback(ctx context.Context, limit int) ([]core.Feedback, error) {
	query := `
	SELECT id, conversation_id, message, response, rating, comment, created_at
	FROM feedback ORDER BY id DESC LIMIT ?`

	rows, err := f.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	items := make([]core.Feedback, 0, limit)
	for rows.Next() {
		var fb core.Feedback
		var rating string
		if err := rows.Scan(&fb.ID, &fb.ConversationID, &fb.Message, &fb.Response, &rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		fb.Rating = core.Rating(rating)
		items = append(items, fb)
	}
	return items, rows.Err()
}
