package tasklog

import (
	"context"
	"log/slog"

	"github.com/860844175/review-system/internal/eventbus"
)

func levelOf(t eventbus.EventType) Level {
	if t == eventbus.TaskSyncFailed {
		return LevelWarn
	}
	return LevelInfo
}

// Recorder persists every bus event as a task log.
type Recorder struct {
	repo Repository
	bus  *eventbus.Bus
}

func NewRecorder(repo Repository, bus *eventbus.Bus) *Recorder {
	return &Recorder{repo: repo, bus: bus}
}

// Run records events until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	id, ch := r.bus.Subscribe(256)
	defer r.bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev *eventbus.Event) {
	l := &TaskLog{
		ID:        ev.ID,
		TaskID:    ev.ResourceID,
		Level:     levelOf(ev.Type),
		Event:     string(ev.Type),
		Message:   ev.Message,
		Metadata:  ev.Metadata,
		CreatedAt: ev.CreatedAt,
	}
	if err := r.repo.Create(ctx, l); err != nil {
		slog.ErrorContext(ctx, "failed to record task log", "task_id", l.TaskID, "event", l.Event, "error", err)
	}
}
