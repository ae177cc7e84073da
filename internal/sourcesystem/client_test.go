package sourcesystem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/httpjson"
	"github.com/860844175/review-system/pkg/retry"
)

func newTestClient(t *testing.T, apiKey string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, apiKey, time.Second, httpjson.WithRetry(retry.Policy{MaxAttempts: 3}))
}

func TestCreateReview(t *testing.T) {
	c := newTestClient(t, "k1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathCreateReview, r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-API-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["user_id"])
		assert.Equal(t, "tri-7", body["target_id"])
		assert.Equal(t, true, body["is_active"])
		assert.Equal(t, true, body["supersede_previous"])
		assert.Equal(t, "d3", body["author_id"])
		assert.NotContains(t, body, "override_json")
		assert.Equal(t, map[string]any{"task_id": "t1"}, body["annotation_json"])
		w.Write([]byte(`{"review_id":"r-1"}`))
	})

	resp, err := c.CreateReview(context.Background(), CreateReviewRequest{
		UserID: "u1", ScenarioID: "s1", TargetKind: DefaultTargetKind, TargetID: "tri-7",
		AnnotationJSON: map[string]any{"task_id": "t1"}, AuthorID: "d3",
		IsActive: true, SupersedePrevious: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", resp.StoredID())
}

func TestCreateReviewWithoutAPIKeyOrID(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["X-Api-Key"]
		assert.False(t, ok)
		w.Write([]byte(`{"id":"legacy-1"}`))
	})
	resp, err := c.CreateReview(context.Background(), CreateReviewRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "legacy-1", resp.StoredID())

	c = newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	resp, err = c.CreateReview(context.Background(), CreateReviewRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, resp.StoredID())
}

func TestCreateReviewFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"success":false,"message":"scenario locked"}`))
	})
	_, err := c.CreateReview(context.Background(), CreateReviewRequest{UserID: "u1"})
	assert.ErrorIs(t, err, httpjson.ErrRemoteRejected)
	assert.Equal(t, int32(3), calls.Load())

	c = newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = c.CreateReview(context.Background(), CreateReviewRequest{UserID: "u1"})
	assert.ErrorIs(t, err, httpjson.ErrTransport)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestBundleTriage(t *testing.T) {
	tests := []struct {
		name   string
		bundle string
		want   Target
		wantOK bool
	}{
		{
			name:   "bundle.data.triage",
			bundle: `{"bundle":{"data":{"triage":{"id":"tri-1","kind":"triage_v2"}}}}`,
			want:   Target{Kind: "triage_v2", ID: "tri-1"},
			wantOK: true,
		},
		{
			name:   "bundle.triage with default kind",
			bundle: `{"bundle":{"triage":{"id":"tri-2"}}}`,
			want:   Target{Kind: DefaultTargetKind, ID: "tri-2"},
			wantOK: true,
		},
		{
			name:   "data.triage numeric id",
			bundle: `{"data":{"triage":{"id":42}}}`,
			want:   Target{Kind: DefaultTargetKind, ID: "42"},
			wantOK: true,
		},
		{
			name:   "top-level triage",
			bundle: `{"triage":{"id":"tri-4"}}`,
			want:   Target{Kind: DefaultTargetKind, ID: "tri-4"},
			wantOK: true,
		},
		{
			name:   "empty nested node falls through",
			bundle: `{"bundle":{"data":{"triage":{}}},"triage":{"id":"tri-5"}}`,
			want:   Target{Kind: DefaultTargetKind, ID: "tri-5"},
			wantOK: true,
		},
		{
			name:   "triage not an object",
			bundle: `{"triage":"pending"}`,
		},
		{
			name:   "missing",
			bundle: `{"bundle":{"data":null}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bundle
			require.NoError(t, json.Unmarshal([]byte(tt.bundle), &b))
			got, ok := b.Triage()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTarget(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "k1", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, pathScenarioBundle, r.URL.Path)
		var body ScenarioBundleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.IncludeReviews)
		switch body.ScenarioID {
		case "s1":
			w.Write([]byte(`{"bundle":{"data":{"triage":{"id":"tri-1"}}}}`))
		case "s2":
			w.Write([]byte(`{"bundle":{}}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	target, err := c.ResolveTarget(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: DefaultTargetKind, ID: "tri-1"}, target)

	_, err = c.ResolveTarget(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrTargetNotFound)

	calls.Store(0)
	_, err = c.ResolveTarget(context.Background(), "s3")
	assert.ErrorIs(t, err, httpjson.ErrTransport)
	// lookups are not retried
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateReviewRejectedThenStored(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"success":false,"message":"busy"}`))
			return
		}
		w.Write([]byte(`{"review_id":"r-2"}`))
	})
	resp, err := c.CreateReview(context.Background(), CreateReviewRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "r-2", resp.StoredID())
	assert.Nil(t, resp.Success)
	assert.Equal(t, int32(2), calls.Load())
}
