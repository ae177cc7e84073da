package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/860844175/review-system/internal/task"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/storage"
)

// DocumentPath is where the whole task collection lives.
const DocumentPath = "tasks/tasks_map.yaml"

const maxIDAttempts = 16

type document struct {
	Tasks []*task.Task `yaml:"tasks"`
}

// YAMLRepository keeps every task in one YAML document. Each operation
// loads, mutates and saves the document while holding mu.
type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
	now     func() time.Time
	newID   func() (string, error)
}

type Option func(*YAMLRepository)

func WithClock(now func() time.Time) Option {
	return func(r *YAMLRepository) {
		r.now = now
	}
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *YAMLRepository) {
		r.newID = gen
	}
}

func NewYAMLRepository(s storage.Storage, opts ...Option) *YAMLRepository {
	r := &YAMLRepository{
		storage: s,
		now:     time.Now,
		newID:   task.NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *YAMLRepository) load(ctx context.Context) ([]*task.Task, error) {
	data, err := r.storage.Read(ctx, DocumentPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.WrapStorageReadError("tasks", err, task.ErrStoreIO)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("%w: failed to unmarshal tasks: %w", task.ErrStoreIO, err))
	}
	return doc.Tasks, nil
}

func (r *YAMLRepository) save(ctx context.Context, tasks []*task.Task) error {
	data, err := yaml.Marshal(&document{Tasks: tasks})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("%w: failed to marshal tasks: %w", task.ErrStoreIO, err))
	}
	if err := r.storage.Write(ctx, DocumentPath, data); err != nil {
		return cerr.WrapStorageWriteError("tasks", err, task.ErrStoreIO)
	}
	return nil
}

func notFound(id string) error {
	return cerr.NewError(cerr.NotFound, "task not found", fmt.Errorf("%w: %s", task.ErrNotFound, id))
}

func findLive(tasks []*task.Task, userID, scenarioID string) *task.Task {
	for _, t := range tasks {
		if t.UserID == userID && t.ScenarioID == scenarioID && t.IsLive() {
			return t
		}
	}
	return nil
}

func (r *YAMLRepository) uniqueID(tasks []*task.Task) (string, error) {
	taken := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		taken[t.ID] = struct{}{}
	}
	for range maxIDAttempts {
		id, err := r.newID()
		if err != nil {
			return "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to generate task id: %w", err))
		}
		if _, dup := taken[id]; !dup {
			return id, nil
		}
	}
	return "", cerr.NewError(cerr.Internal, "server error", errors.New("failed to generate a unique task id"))
}

// create appends a new pending task. The caller holds mu.
func (r *YAMLRepository) create(ctx context.Context, tasks []*task.Task, userID, scenarioID, fixture, source string) (*task.Task, error) {
	id, err := r.uniqueID(tasks)
	if err != nil {
		return nil, err
	}
	if fixture == "" {
		fixture = task.DefaultFixture
	}
	if source == "" {
		source = task.SourceFixture
	}
	t := &task.Task{
		ID:         id,
		UserID:     userID,
		ScenarioID: scenarioID,
		Fixture:    fixture,
		Source:     source,
		Status:     task.StatusPending,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.save(ctx, append(tasks, t)); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (r *YAMLRepository) Create(ctx context.Context, userID, scenarioID, fixture, source string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return r.create(ctx, tasks, userID, scenarioID, fixture, source)
}

func (r *YAMLRepository) EnsurePending(ctx context.Context, userID, scenarioID, fixture, source string) (*task.Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if t := findLive(tasks, userID, scenarioID); t != nil {
		return t.Clone(), false, nil
	}
	t, err := r.create(ctx, tasks, userID, scenarioID, fixture, source)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return nil, notFound(id)
}

func (r *YAMLRepository) FindPendingByPair(ctx context.Context, userID, scenarioID string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if t := findLive(tasks, userID, scenarioID); t != nil {
		return t.Clone(), nil
	}
	return nil, cerr.NewError(cerr.NotFound, "task not found", fmt.Errorf("%w: user %s scenario %s", task.ErrNotFound, userID, scenarioID))
}

func (r *YAMLRepository) Update(ctx context.Context, id string, mutate func(*task.Task)) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		mutate(t)
		t.ID = id
		if err := r.save(ctx, tasks); err != nil {
			return nil, err
		}
		return t.Clone(), nil
	}
	return nil, notFound(id)
}

func (r *YAMLRepository) List(ctx context.Context) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	task.SortByCreated(tasks)
	return tasks, nil
}

func (r *YAMLRepository) Deduplicate(ctx context.Context) (task.DedupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.load(ctx)
	if err != nil {
		return task.DedupResult{}, err
	}
	kept := task.Survivors(tasks)
	result := task.DedupResult{Removed: len(tasks) - len(kept), Kept: len(kept)}
	if result.Removed == 0 {
		return result, nil
	}
	task.SortByCreated(kept)
	if err := r.save(ctx, kept); err != nil {
		return task.DedupResult{}, err
	}
	return result, nil
}
