package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/860844175/review-system/internal/reviewer"
	"github.com/860844175/review-system/pkg/cerr"
)

var ErrNoAvailableReviewer = errors.New("no available reviewer")

type Request struct {
	UserID     string
	ScenarioID string
	TaskID     string
	// HospitalID restricts candidates to one hospital when set.
	HospitalID string
}

type Result struct {
	DoctorID         string `json:"doctor_id"`
	AssignmentReason string `json:"assignment_reason"`
	StrategyUsed     string `json:"strategy_used"`
}

type Assigner struct {
	directory reviewer.Directory
	strategy  Strategy
}

// NewAssigner returns an Assigner using the named registered strategy.
func NewAssigner(directory reviewer.Directory, strategyName string) (*Assigner, error) {
	s, err := lookup(strategyName)
	if err != nil {
		return nil, err
	}
	return NewAssignerWithStrategy(directory, s), nil
}

func NewAssignerWithStrategy(directory reviewer.Directory, s Strategy) *Assigner {
	return &Assigner{directory: directory, strategy: s}
}

func (a *Assigner) StrategyName() string {
	return a.strategy.Name()
}

// Candidates returns the reviewers of hospitalID (all when empty) with
// their open-task counts.
func (a *Assigner) Candidates(ctx context.Context, hospitalID string) ([]Candidate, error) {
	reviewers, err := a.directory.ListReviewers(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewers: %w", err)
	}
	candidates := make([]Candidate, 0, len(reviewers))
	for _, r := range reviewers {
		if r == nil || r.ID == "" {
			continue
		}
		if hospitalID != "" && r.HospitalID != hospitalID {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.ID
		}
		candidates = append(candidates, Candidate{ReviewerID: r.ID, ReviewerName: name, OpenTasks: r.OpenTaskCount()})
	}
	return candidates, nil
}

func (a *Assigner) Assign(ctx context.Context, req Request) (*Result, error) {
	candidates, err := a.Candidates(ctx, req.HospitalID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		msg := "no available reviewer"
		if req.HospitalID != "" {
			msg = fmt.Sprintf("no available reviewer in hospital %s", req.HospitalID)
		}
		return nil, cerr.NewError(cerr.FailedPrecondition, msg, ErrNoAvailableReviewer)
	}

	selected, reason, err := a.strategy.Select(ctx, req, candidates)
	if err != nil {
		return nil, fmt.Errorf("strategy %s failed: %w", a.strategy.Name(), err)
	}
	slog.InfoContext(ctx, "task assigned",
		"task_id", req.TaskID,
		"doctor_id", selected.ReviewerID,
		"open_tasks", selected.OpenTasks,
		"strategy", a.strategy.Name(),
	)
	return &Result{
		DoctorID:         selected.ReviewerID,
		AssignmentReason: reason,
		StrategyUsed:     a.strategy.Name(),
	}, nil
}
