package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/860844175/review-system/internal/tasklog"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/storage"
)

const taskLogsPrefix = "task_logs"

// YAMLRepository stores one file per log entry under task_logs/<task_id>/.
// Entry ids are ULIDs, so listing order is creation order.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func dir(taskID string) string {
	return fmt.Sprintf("%s/%s", taskLogsPrefix, taskID)
}

func path(taskID, id string) string {
	return fmt.Sprintf("%s/%s.yaml", dir(taskID), id)
}

func (r *YAMLRepository) Create(ctx context.Context, l *tasklog.TaskLog) error {
	if l.TaskID == "" {
		return cerr.NewError(cerr.InvalidArgument, "task log needs a task id", nil)
	}
	data, err := yaml.Marshal(l)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task log: %w", err))
	}
	if err := r.storage.Write(ctx, path(l.TaskID, l.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task_log", err, nil)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, taskID string, limit, offset int) ([]*tasklog.TaskLog, int, error) {
	paths, err := r.storage.List(ctx, dir(taskID))
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("task_logs", err, nil)
	}

	total := len(paths)
	if offset >= total {
		return nil, total, nil
	}
	paths = paths[offset:]
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	logs := make([]*tasklog.TaskLog, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, 0, cerr.WrapStorageReadError("task_log", err, nil)
		}
		var l tasklog.TaskLog
		if err := yaml.Unmarshal(data, &l); err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal %s: %w", p, err))
		}
		logs = append(logs, &l)
	}
	return logs, total, nil
}
