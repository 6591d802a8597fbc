package core

import (
	"context"
	"time"
)

// StateStore is a small key/value store for short-lived shared state
// (step-up grants, conversation logs).
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RecordStore interface {
	Verify(ctx context.Context, subjectID, name string) (bool, error)
	Lookup(ctx context.Context, subjectID string) (Record, bool, error)
	SecretHash(ctx context.Context, subjectID string) (string, bool, error)
	Stats(ctx context.Context, breakdownColumns []string) (Stats, error)
	Columns(ctx context.Context) ([]string, error)
}

type FeedbackRepository interface {
	SaveFeedback(ctx context.Context, fb Feedback) error
	FeedbackStats(ctx context.Context) (FeedbackStats, error)
	RecentFeedback(ctx context.Context, limit int) ([]Feedback, error)
}

type IssueRepository interface {
	LogIssue(ctx context.Context, issue Issue) error
	RecentIssues(ctx context.Context, kind IssueType, limit int) ([]Issue, error)
	CountIssues(ctx context.Context, kind IssueType) (int, error)
}
