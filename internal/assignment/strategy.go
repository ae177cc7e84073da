package assignment

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Candidate is a reviewer together with their current open-task count.
type Candidate struct {
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
	OpenTasks    int    `json:"open_tasks"`
}

// Strategy picks one reviewer out of a non-empty candidate set.
type Strategy interface {
	Name() string
	Select(ctx context.Context, req Request, candidates []Candidate) (Candidate, string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Strategy{}
)

// Register makes a strategy available by name. It panics on duplicates.
func Register(name string, factory func() Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("assignment: strategy %q registered twice", name))
	}
	registry[name] = factory
}

func lookup(name string) (Strategy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown assignment strategy %q (available: %v)", name, strategyNames())
	}
	return factory(), nil
}

func strategyNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const LoadBalance = "load_balance"

func init() {
	Register(LoadBalance, func() Strategy { return loadBalance{} })
}

// loadBalance picks the reviewer with the fewest open tasks, ties broken by
// the smallest reviewer id.
type loadBalance struct{}

func (loadBalance) Name() string { return LoadBalance }

func (loadBalance) Select(_ context.Context, _ Request, candidates []Candidate) (Candidate, string, error) {
	best := slices.MinFunc(candidates, func(a, b Candidate) int {
		if a.OpenTasks != b.OpenTasks {
			return a.OpenTasks - b.OpenTasks
		}
		switch {
		case a.ReviewerID < b.ReviewerID:
			return -1
		case a.ReviewerID > b.ReviewerID:
			return 1
		}
		return 0
	})
	reason := fmt.Sprintf("load balance: reviewer %s has %d open task(s), the fewest among %d candidate(s)",
		best.ReviewerName, best.OpenTasks, len(candidates))
	return best, reason, nil
}
