package review

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/860844175/review-system/internal/assignment"
	"github.com/860844175/review-system/internal/task"
	"github.com/860844175/review-system/internal/tasklog"
	"github.com/860844175/review-system/pkg/cerr"
)

const (
	CreateTaskPath   = "/openapi/review/task/create"
	SubmitReviewPath = "/api/diagnosis-system/triage-review/submit"
	DeduplicatePath  = "/api/tasks/deduplicate"

	defaultLogLimit = 50
)

// CandidateLister reports reviewers with their open task counts.
type CandidateLister interface {
	Candidates(ctx context.Context, hospitalID string) ([]assignment.Candidate, error)
}

// Handler serves the JSON front door. Responses are written by
// cerr.NewJSONResponseChiMiddleware.
type Handler struct {
	service    *Service
	tasks      task.Repository
	logs       tasklog.Repository
	candidates CandidateLister
}

func NewHandler(service *Service, tasks task.Repository, logs tasklog.Repository, candidates CandidateLister) *Handler {
	return &Handler{
		service:    service,
		tasks:      tasks,
		logs:       logs,
		candidates: candidates,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post(CreateTaskPath, h.createTask)
	r.Post(SubmitReviewPath, h.submitReview)
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", h.listTasks)
		r.Post("/deduplicate", h.deduplicate)
		r.Get("/{id}", h.getTask)
		r.Get("/{id}/logs", h.taskLogs)
	})
	r.Get("/api/reviewers", h.listReviewers)
}

type createResponse struct {
	Success bool `json:"success"`
	*CreateResult
}

type submitResponse struct {
	Success bool `json:"success"`
	*SubmitResult
}

type tasksResponse struct {
	Success bool         `json:"success"`
	Tasks   []*task.Task `json:"tasks"`
	Total   int          `json:"total"`
}

type taskResponse struct {
	Success bool       `json:"success"`
	Task    *task.Task `json:"task"`
}

type dedupResponse struct {
	Success bool `json:"success"`
	task.DedupResult
}

type logsResponse struct {
	Success bool               `json:"success"`
	Logs    []*tasklog.TaskLog `json:"logs"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

type reviewersResponse struct {
	Success   bool                   `json:"success"`
	Reviewers []assignment.Candidate `json:"reviewers"`
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case errors.Is(err, io.EOF):
		return cerr.NewError(cerr.InvalidArgument, "missing request body", err)
	case err != nil:
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := h.service.CreateReviewTask(ctx, req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, createResponse{Success: true, CreateResult: res})
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := h.service.SubmitReview(ctx, req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, submitResponse{Success: true, SubmitResult: res})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := h.tasks.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.EffectiveStatus()) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	cerr.SetJSONResponse(ctx, tasksResponse{Success: true, Tasks: tasks, Total: len(tasks)})
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.tasks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskResponse{Success: true, Task: t})
}

func (h *Handler) deduplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.tasks.Deduplicate(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, dedupResponse{Success: true, DedupResult: res})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, cerr.NewError(cerr.InvalidArgument, key+" must be a non-negative integer", err)
	}
	return n, nil
}

func (h *Handler) taskLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	limit, err := queryInt(r, "limit", defaultLogLimit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if limit == 0 {
		limit = defaultLogLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	logs, total, err := h.logs.List(ctx, id, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if logs == nil {
		logs = []*tasklog.TaskLog{}
	}
	cerr.SetJSONResponse(ctx, logsResponse{Success: true, Logs: logs, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) listReviewers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidates, err := h.candidates.Candidates(ctx, r.URL.Query().Get("hospital_id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if candidates == nil {
		candidates = []assignment.Candidate{}
	}
	cerr.SetJSONResponse(ctx, reviewersResponse{Success: true, Reviewers: candidates})
}
