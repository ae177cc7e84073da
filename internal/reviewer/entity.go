package reviewer

import (
	"context"
	"errors"
)

// OpenTaskStatus is the platform status of a task not yet reviewed.
const OpenTaskStatus = 0

var ErrNotFound = errors.New("reviewer not found")

// Task is the platform's stub of a review task held by a reviewer.
type Task struct {
	ID     string `json:"id,omitempty"`
	Status int    `json:"status"`
}

type Reviewer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HospitalID string `json:"hospitalId,omitempty"`
	Tasks      []Task `json:"tasks"`
}

// OpenTaskCount is the number of tasks still waiting for this reviewer.
func (r *Reviewer) OpenTaskCount() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == OpenTaskStatus {
			n++
		}
	}
	return n
}

// Directory lists the reviewers that tasks may be assigned to.
type Directory interface {
	// ListReviewers returns all reviewers, or those of one hospital when
	// hospitalID is not empty.
	ListReviewers(ctx context.Context, hospitalID string) ([]*Reviewer, error)
	GetReviewer(ctx context.Context, id string) (*Reviewer, error)
}
