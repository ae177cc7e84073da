package reviewer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/860844175/review-system/pkg/cerr"
)

const rosterJSON = `{"data": [
  {"id": "d1", "name": "Dr. Li", "hospitalId": "h1", "tasks": [{"status": 0}, {"status": 1}]},
  {"id": "d2", "name": "Dr. Wang", "hospitalId": "h2", "tasks": []}
]}`

func writeRoster(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestFileDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test_doctors.json")
	writeRoster(t, path, rosterJSON)

	d, err := NewFileDirectory(path)
	require.NoError(t, err)

	all, err := d.ListReviewers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].OpenTaskCount())
	assert.Equal(t, 0, all[1].OpenTaskCount())

	h2, err := d.ListReviewers(ctx, "h2")
	require.NoError(t, err)
	require.Len(t, h2, 1)
	assert.Equal(t, "d2", h2[0].ID)

	none, err := d.ListReviewers(ctx, "h9")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := d.GetReviewer(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Li", got.Name)
	got.Tasks[0].Status = 1
	again, err := d.GetReviewer(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.OpenTaskCount())

	_, err = d.GetReviewer(ctx, "d9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestFileDirectoryMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()

	d, err := NewFileDirectory(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	all, err := d.ListReviewers(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = NewFileDirectory(bad)
	assert.Error(t, err)
}

func TestFileDirectoryWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_doctors.json")
	writeRoster(t, path, rosterJSON)
	d, err := NewFileDirectory(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	writeRoster(t, path, `{"data": [{"id": "d3", "name": "Dr. Zhao", "tasks": []}]}`)

	assert.Eventually(t, func() bool {
		all, _ := d.ListReviewers(context.Background(), "")
		return len(all) == 1 && all[0].ID == "d3"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOpenTaskCount(t *testing.T) {
	r := &Reviewer{Tasks: []Task{{Status: 0}, {Status: 0}, {Status: 2}}}
	assert.Equal(t, 2, r.OpenTaskCount())
	assert.Equal(t, 0, (&Reviewer{}).OpenTaskCount())
}
