package tasklog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/860844175/review-system/internal/eventbus"
	"github.com/860844175/review-system/internal/tasklog"
	"github.com/860844175/review-system/internal/tasklog/repositoryimpl"
	"github.com/860844175/review-system/pkg/storage"
)

func TestRecorder(t *testing.T) {
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(s)
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	rec := tasklog.NewRecorder(repo, bus)
	go func() { done <- rec.Run(ctx) }()

	// wait until the recorder has subscribed
	require.Eventually(t, func() bool {
		bus.PublishNew(eventbus.TaskCreated, "warmup", "", nil)
		_, total, _ := repo.List(context.Background(), "warmup", 0, 0)
		return total > 0
	}, 2*time.Second, 10*time.Millisecond)

	bus.PublishNew(eventbus.TaskCreated, "t1", "task created", map[string]string{"user_id": "u1"})
	bus.PublishNew(eventbus.TaskSyncFailed, "t1", "platform registration failed", nil)

	require.Eventually(t, func() bool {
		_, total, _ := repo.List(context.Background(), "t1", 0, 0)
		return total == 2
	}, 2*time.Second, 10*time.Millisecond)

	logs, total, err := repo.List(context.Background(), "t1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, logs, 1)
	assert.Equal(t, "task.sync_failed", logs[0].Event)
	assert.Equal(t, tasklog.LevelWarn, logs[0].Level)

	cancel()
	require.NoError(t, <-done)
}
