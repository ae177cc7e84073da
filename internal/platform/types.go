package platform

import (
	"encoding/json"
	"errors"

	"github.com/860844175/review-system/internal/reviewer"
)

// DefaultTaskKind is the review kind registered for triage tasks.
const DefaultTaskKind = "分诊评估"

const (
	pathRegisterTask  = "/openapi/doctor/approve/add"
	pathSubmitTask    = "/openapi/doctor/approve/submit"
	pathListReviewers = "/openapi/doctor/list"
	pathGetReviewer   = "/openapi/doctor/get"
	pathListHospitals = "/openapi/hospital/list"
)

// envelope is the platform's common response shape.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (e *envelope[T]) accept() error {
	if e.Success {
		return nil
	}
	if e.Message == "" {
		return errors.New("success=false")
	}
	return errors.New(e.Message)
}

type RegisterTaskRequest struct {
	ID string `json:"id"`
	// DoctorID is sent as null when the task has no reviewer yet.
	DoctorID   *string `json:"doctorId"`
	CustomerID string  `json:"customerId"`
	Kind       string  `json:"kind"`
	URL        string  `json:"url"`
}

type SubmitTaskRequest struct {
	ID string `json:"id"`
}

type ListReviewersRequest struct {
	HospitalID string `json:"hospitalId,omitempty"`
}

type GetReviewerRequest struct {
	ID string `json:"id"`
}

// Response is what the platform answered to a write operation.
type Response struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Hospital struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type reviewerList = envelope[[]*reviewer.Reviewer]
