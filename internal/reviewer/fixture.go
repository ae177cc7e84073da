package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/860844175/review-system/pkg/cerr"
)

// DebounceInterval lets an editor's write+rename settle before reloading.
const DebounceInterval = 100 * time.Millisecond

type roster struct {
	Data []*Reviewer `json:"data"`
}

// FileDirectory serves reviewers from a JSON roster file of the form
// {"data": [...]}. It is used in development instead of the platform.
type FileDirectory struct {
	path string

	mu        sync.RWMutex
	reviewers []*Reviewer
}

// NewFileDirectory loads path once. A missing file yields an empty roster.
func NewFileDirectory(path string) (*FileDirectory, error) {
	d := &FileDirectory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("reviewer roster not found, using an empty roster", "path", d.path)
		d.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reviewer roster %s: %w", d.path, err)
	}
	var r roster
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("failed to parse reviewer roster %s: %w", d.path, err)
	}
	d.set(r.Data)
	slog.Info("reviewer roster loaded", "path", d.path, "reviewers", len(r.Data))
	return nil
}

func (d *FileDirectory) set(reviewers []*Reviewer) {
	d.mu.Lock()
	d.reviewers = reviewers
	d.mu.Unlock()
}

func clone(r *Reviewer) *Reviewer {
	c := *r
	c.Tasks = append([]Task(nil), r.Tasks...)
	return &c
}

func (d *FileDirectory) ListReviewers(_ context.Context, hospitalID string) ([]*Reviewer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Reviewer, 0, len(d.reviewers))
	for _, r := range d.reviewers {
		if hospitalID != "" && r.HospitalID != hospitalID {
			continue
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func (d *FileDirectory) GetReviewer(_ context.Context, id string) (*Reviewer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, r := range d.reviewers {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "reviewer not found", fmt.Errorf("%w: %s", ErrNotFound, id))
}

// Watch reloads the roster whenever the file changes until ctx is done.
// The parent directory is watched so atomic replaces are seen too.
func (d *FileDirectory) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(d.path)
	name := filepath.Base(d.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DebounceInterval, func() {
				if err := d.Reload(); err != nil {
					// keep serving the previous roster
					slog.Error("failed to reload reviewer roster", "error", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("reviewer roster watcher error", "error", err)
		}
	}
}
