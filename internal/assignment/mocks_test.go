package assignment

import (
	"context"

	"github.com/860844175/review-system/internal/reviewer"
)

type MockDirectory struct {
	ListReviewersFunc func(ctx context.Context, hospitalID string) ([]*reviewer.Reviewer, error)
	GetReviewerFunc   func(ctx context.Context, id string) (*reviewer.Reviewer, error)
}

func (m *MockDirectory) ListReviewers(ctx context.Context, hospitalID string) ([]*reviewer.Reviewer, error) {
	return m.ListReviewersFunc(ctx, hospitalID)
}

func (m *MockDirectory) GetReviewer(ctx context.Context, id string) (*reviewer.Reviewer, error) {
	return m.GetReviewerFunc(ctx, id)
}

func openTasks(n int) []reviewer.Task {
	tasks := make([]reviewer.Task, 0, n+1)
	for range n {
		tasks = append(tasks, reviewer.Task{Status: reviewer.OpenTaskStatus})
	}
	// reviewed tasks never count
	return append(tasks, reviewer.Task{Status: 1})
}

func staticRoster(roster ...*reviewer.Reviewer) *MockDirectory {
	return &MockDirectory{
		ListReviewersFunc: func(_ context.Context, hospitalID string) ([]*reviewer.Reviewer, error) {
			var out []*reviewer.Reviewer
			for _, r := range roster {
				if hospitalID == "" || r.HospitalID == hospitalID {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
}
