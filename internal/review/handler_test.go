package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/860844175/review-system/internal/assignment"
	"github.com/860844175/review-system/internal/tasklog"
	logrepo "github.com/860844175/review-system/internal/tasklog/repositoryimpl"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/storage"
)

type MockCandidateLister struct {
	CandidatesFunc func(ctx context.Context, hospitalID string) ([]assignment.Candidate, error)
}

func (m *MockCandidateLister) Candidates(ctx context.Context, hospitalID string) ([]assignment.Candidate, error) {
	return m.CandidatesFunc(ctx, hospitalID)
}

type handlerFixture struct {
	*fixture
	logs tasklog.Repository
	srv  *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t, assignTo("d3"), 0, 0)
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	logs := logrepo.NewYAMLRepository(st)
	lister := &MockCandidateLister{CandidatesFunc: func(_ context.Context, hospitalID string) ([]assignment.Candidate, error) {
		if hospitalID == "empty" {
			return nil, nil
		}
		return []assignment.Candidate{{ReviewerID: "d3", ReviewerName: "Dr. Three", OpenTasks: 1}}, nil
	}}

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewHandler(f.svc, f.tasks, logs, lister).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &handlerFixture{fixture: f, logs: logs, srv: srv}
}

func (h *handlerFixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHandlerCreateAndSubmit(t *testing.T) {
	h := newHandlerFixture(t)

	status, created := h.do(t, http.MethodPost, CreateTaskPath, `{"user_id":"u1","scenario_id":"s1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, created["success"])
	assert.Equal(t, true, created["platform_synced"])
	assert.Equal(t, "d3", created["doctor_id"])
	taskID, _ := created["task_id"].(string)
	require.NotEmpty(t, taskID)

	status, got := h.do(t, http.MethodGet, "/api/tasks/"+taskID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "assigned", got["task"].(map[string]any)["status"])

	status, submitted := h.do(t, http.MethodPost, SubmitReviewPath,
		`{"task_id":"`+taskID+`","user_id":"u1","scenario_id":"s1","decision":{"reviewer_id":"d3"},"modifications":[]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"success":         true,
		"task_id":         taskID,
		"status":          "completed",
		"platform_synced": true,
		"system_synced":   true,
	}, submitted)

	status, list := h.do(t, http.MethodGet, "/api/tasks?status=completed", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), list["total"])
}

func TestHandlerErrors(t *testing.T) {
	h := newHandlerFixture(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		code     string
		nDetails int
	}{
		{"empty body", http.MethodPost, CreateTaskPath, "", http.StatusBadRequest, "invalid_argument", 0},
		{"malformed body", http.MethodPost, CreateTaskPath, "{", http.StatusBadRequest, "invalid_argument", 0},
		{"missing ids", http.MethodPost, SubmitReviewPath, `{"user_id":"u1"}`, http.StatusBadRequest, "invalid_argument", 2},
		{"unknown task", http.MethodGet, "/api/tasks/nope", "", http.StatusNotFound, "not_found", 0},
		{"bad limit", http.MethodGet, "/api/tasks/x/logs?limit=-1", "", http.StatusBadRequest, "invalid_argument", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			details, _ := body["details"].([]any)
			assert.Len(t, details, tt.nDetails)
		})
	}
	assert.Zero(t, h.platform.calls.Load())
	assert.Zero(t, h.source.calls.Load())
}

func TestHandlerAdmin(t *testing.T) {
	h := newHandlerFixture(t)
	ctx := context.Background()

	for i, event := range []string{"task.created", "task.assigned", "task.completed"} {
		require.NoError(t, h.logs.Create(ctx, &tasklog.TaskLog{
			ID:        "01J0000000000000000000000" + string(rune('A'+i)),
			TaskID:    "t1",
			Level:     tasklog.LevelInfo,
			Event:     event,
			CreatedAt: testNow.Add(time.Duration(i) * time.Second),
		}))
	}

	status, logs := h.do(t, http.MethodGet, "/api/tasks/t1/logs?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), logs["total"])
	entries := logs["logs"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "task.assigned", entries[0].(map[string]any)["event"])

	status, logs = h.do(t, http.MethodGet, "/api/tasks/other/logs", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, logs["logs"])

	status, dedup := h.do(t, http.MethodPost, "/api/tasks/deduplicate", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), dedup["removed"])

	status, reviewers := h.do(t, http.MethodGet, "/api/reviewers", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{map[string]any{"reviewer_id": "d3", "reviewer_name": "Dr. Three", "open_tasks": float64(1)}}, reviewers["reviewers"])

	_, reviewers = h.do(t, http.MethodGet, "/api/reviewers?hospital_id=empty", "")
	assert.Equal(t, []any{}, reviewers["reviewers"])
}

func TestConnectServer(t *testing.T) {
	f := newFixture(t, assignTo("d3"), 0, 0)
	mux := http.NewServeMux()
	for path, handler := range NewConnectServer(f.svc).Handlers(connect.WithInterceptors(cerr.NewConvertConnectErrorInterceptor())) {
		mux.Handle(path, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	create := connect.NewClient[CreateRequest, CreateResult](srv.Client(), srv.URL+CreateReviewTaskProcedure, connect.WithCodec(jsonCodec{}))
	res, err := create.CallUnary(context.Background(), connect.NewRequest(&CreateRequest{UserID: "u1", ScenarioID: "s1"}))
	require.NoError(t, err)
	assert.Equal(t, "d3", res.Msg.DoctorID)
	assert.True(t, res.Msg.PlatformSynced)

	submit := connect.NewClient[SubmitRequest, SubmitResult](srv.Client(), srv.URL+SubmitReviewProcedure, connect.WithCodec(jsonCodec{}))
	_, err = submit.CallUnary(context.Background(), connect.NewRequest(&SubmitRequest{TaskID: res.Msg.TaskID}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
