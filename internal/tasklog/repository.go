package tasklog

import "context"

type Repository interface {
	Create(ctx context.Context, log *TaskLog) error
	// List returns the logs of taskID oldest first, and the total count.
	List(ctx context.Context, taskID string, limit, offset int) ([]*TaskLog, int, error)
}
