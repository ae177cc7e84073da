package repositoryimpl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/860844175/review-system/internal/task"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/storage"
)

func newRepo(t *testing.T, opts ...Option) (*YAMLRepository, *storage.LocalStorage) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s, opts...), s
}

// failingStorage wraps a real storage and fails every write.
type failingStorage struct {
	storage.Storage
}

func (failingStorage) Write(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo, _ := newRepo(t, WithClock(func() time.Time { return now }))

	created, err := repo.Create(ctx, "u1", "s1", "", "")
	require.NoError(t, err)
	assert.True(t, task.ValidID(created.ID))
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Equal(t, task.DefaultFixture, created.Fixture)
	assert.Equal(t, task.SourceFixture, created.Source)
	assert.Equal(t, now, created.CreatedAt)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestCreateRegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	seq := []string{"AAAAAAAAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBBBBBBBB"}
	var n int
	repo, _ := newRepo(t, WithIDGenerator(func() (string, error) {
		id := seq[n]
		n++
		return id, nil
	}))

	first, err := repo.Create(ctx, "u1", "s1", "", "")
	require.NoError(t, err)
	second, err := repo.Create(ctx, "u2", "s2", "", "")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAA", first.ID)
	assert.Equal(t, "BBBBBBBBBBBBBBBBBBBBBB", second.ID)
	assert.Equal(t, 3, n)
}

func TestCreateStoreIOFailure(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(failingStorage{Storage: s})

	created, err := repo.Create(ctx, "u1", "s1", "", "")
	assert.Nil(t, created)
	assert.ErrorIs(t, err, task.ErrStoreIO)
	assert.True(t, cerr.IsCode(err, cerr.Internal))

	_, _, err = repo.EnsurePending(ctx, "u1", "s1", "", "")
	assert.ErrorIs(t, err, task.ErrStoreIO)
}

func TestCorruptDocument(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)
	require.NoError(t, s.Write(ctx, DocumentPath, []byte("tasks: {not: [a list")))

	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, task.ErrStoreIO)
}

func TestEnsurePendingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	first, created, err := repo.EnsurePending(ctx, "u1", "s1", "emergent", task.SourceLive)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "emergent", first.Fixture)

	second, created, err := repo.EnsurePending(ctx, "u1", "s1", "", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// still reused once a doctor is assigned
	_, err = repo.Update(ctx, first.ID, func(t *task.Task) { t.Assign("d1", time.Now()) })
	require.NoError(t, err)
	third, created, err := repo.EnsurePending(ctx, "u1", "s1", "", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, third.ID)

	// a completed task frees the pair
	_, err = repo.Update(ctx, first.ID, func(t *task.Task) { t.Complete(time.Now()) })
	require.NoError(t, err)
	fourth, created, err := repo.EnsurePending(ctx, "u1", "s1", "", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fourth.ID)
}

func TestEnsurePendingConcurrent(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, _, err := repo.EnsurePending(ctx, "u1", "s1", "", "")
			assert.NoError(t, err)
			results[i] = tk.ID
		}()
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindPendingByPair(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)

	// legacy record without a status
	require.NoError(t, s.Write(ctx, DocumentPath, []byte(`tasks:
  - task_id: LegacyTaskId0000000000
    user_id: u1
    scenario_id: s1
    created_at: 2024-12-01T00:00:00Z
`)))

	got, err := repo.FindPendingByPair(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "LegacyTaskId0000000000", got.ID)
	assert.Equal(t, task.StatusPending, got.EffectiveStatus())

	_, err = repo.FindPendingByPair(ctx, "u1", "other")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	created, err := repo.Create(ctx, "u1", "s1", "", "")
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, func(t *task.Task) {
		t.Assign("d3", time.Now())
		t.ID = "hijacked"
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "d3", updated.DoctorID)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.NotNil(t, got.AssignedAt)

	_, err = repo.Update(ctx, "missing", func(*task.Task) {})
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestDeduplicate(t *testing.T) {
	ctx := context.Background()
	repo, s := newRepo(t)
	require.NoError(t, s.Write(ctx, DocumentPath, []byte(`tasks:
  - {task_id: p1, user_id: u1, scenario_id: s1, status: pending, created_at: 2025-01-01T00:00:00Z}
  - {task_id: p2, user_id: u1, scenario_id: s1, status: pending, created_at: 2025-01-02T00:00:00Z}
  - {task_id: c1, user_id: u1, scenario_id: s1, status: completed, created_at: 2025-01-03T00:00:00Z}
  - {task_id: c2, user_id: u2, scenario_id: s1, status: completed, created_at: 2025-01-01T00:00:00Z}
  - {task_id: c3, user_id: u2, scenario_id: s1, status: completed, created_at: 2025-01-05T00:00:00Z}
  - {task_id: x1, user_id: u3, scenario_id: s9, status: pending, created_at: 2025-01-01T00:00:00Z}
`)))

	result, err := repo.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.DedupResult{Removed: 3, Kept: 3}, result)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	var got []string
	for _, tk := range all {
		got = append(got, tk.ID)
	}
	assert.ElementsMatch(t, []string{"p2", "c3", "x1"}, got)

	again, err := repo.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.DedupResult{Removed: 0, Kept: 3}, again)
}
