package task

import (
	"cmp"
	"slices"
)

type pair struct {
	userID, scenarioID string
}

func rank(t *Task) int {
	switch {
	case t.IsLive():
		return 2
	case t.EffectiveStatus() == StatusCompleted:
		return 1
	default:
		return 0
	}
}

// Survivors picks one task per (user_id, scenario_id): the newest live task,
// else the newest completed one, else the newest of any status. The result
// keeps the input order.
func Survivors(tasks []*Task) []*Task {
	best := make(map[pair]*Task, len(tasks))
	for _, t := range tasks {
		k := pair{t.UserID, t.ScenarioID}
		cur, ok := best[k]
		if !ok || better(t, cur) {
			best[k] = t
		}
	}
	kept := make([]*Task, 0, len(best))
	for _, t := range tasks {
		if best[pair{t.UserID, t.ScenarioID}] == t {
			kept = append(kept, t)
		}
	}
	return kept
}

func better(a, b *Task) bool {
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c > 0
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortByCreated orders tasks oldest first, ties by id.
func SortByCreated(tasks []*Task) {
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
