package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const recentLimit = 10

var ErrInvalidRating = errors.New("rating must be positive or negative")

// Report is the admin view over feedback and unanswered questions.
type Report struct {
	SatisfactionRate float64         `json:"satisfaction_rate"`
	TotalFeedbacks   int             `json:"total_feedbacks"`
	UnansweredCount  int             `json:"unanswered_count"`
	UnansweredLogs   []core.Issue    `json:"unanswered_logs"`
	RecentFeedbacks  []core.Feedback `json:"recent_feedbacks"`
}

type Service struct {
	feedback core.FeedbackRepository
	issues   core.IssueRepository
}

func NewService(feedback core.FeedbackRepository, issues core.IssueRepository) *Service {
	return &Service{feedback: feedback, issues: issues}
}

// Submit stores a rating. Negative ratings also enter the review log.
func (s *Service) Submit(ctx context.Context, fb core.Feedback) error {
	fb.Rating = core.Rating(strings.ToLower(strings.TrimSpace(string(fb.Rating))))
	if fb.Rating != core.RatingPositive && fb.Rating != core.RatingNegative {
		return ErrInvalidRating
	}

	if err := s.feedback.SaveFeedback(ctx, fb); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	if fb.Rating == core.RatingNegative {
		issue := core.Issue{Type: core.IssueLowConfidence, Question: fb.Message, Response: fb.Response}
		if err := s.issues.LogIssue(ctx, issue); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Msg("failed to log low confidence issue")
		}
	}
	return nil
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	stats, err := s.feedback.FeedbackStats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load feedback stats: %w", err)
	}
	count, err := s.issues.CountIssues(ctx, core.IssueUnanswered)
	if err != nil {
		return Report{}, fmt.Errorf("failed to count issues: %w", err)
	}
	logs, err := s.issues.RecentIssues(ctx, core.IssueUnanswered, recentLimit)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load issues: %w", err)
	}
	recent, err := s.feedback.RecentFeedback(ctx, recentLimit)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load feedback: %w", err)
	}

	if logs == nil {
		logs = []core.Issue{}
	}
	if recent == nil {
		recent = []core.Feedback{}
	}

	return Report{
		SatisfactionRate: stats.SatisfactionRate,
		TotalFeedbacks:   stats.Total,
		UnansweredCount:  count,
		UnansweredLogs:   logs,
		RecentFeedbacks:  recent,
	}, nil
}
