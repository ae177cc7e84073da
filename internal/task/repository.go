package task

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrStoreIO marks a failure to load or persist the task collection.
	ErrStoreIO = errors.New("task store io failure")
)

type DedupResult struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

type Repository interface {
	// Create persists a new pending task with a fresh id.
	Create(ctx context.Context, userID, scenarioID, fixture, source string) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	// FindPendingByPair returns the live task for the pair, or an error
	// coded NotFound.
	FindPendingByPair(ctx context.Context, userID, scenarioID string) (*Task, error)
	// EnsurePending returns the live task for the pair, creating one if none
	// exists. created reports which happened.
	EnsurePending(ctx context.Context, userID, scenarioID, fixture, source string) (t *Task, created bool, err error)
	// Update applies mutate to the stored task and persists it.
	Update(ctx context.Context, id string, mutate func(*Task)) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	Deduplicate(ctx context.Context) (DedupResult, error)
}
