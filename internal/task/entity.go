package task

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
)

const (
	SourceFixture = "fixture"
	SourceLive    = "live"

	DefaultFixture = "nonurgent"
)

// Task binds a (user, scenario) pair to at most one reviewer.
type Task struct {
	ID          string     `yaml:"task_id" json:"task_id"`
	UserID      string     `yaml:"user_id" json:"user_id"`
	ScenarioID  string     `yaml:"scenario_id" json:"scenario_id"`
	Fixture     string     `yaml:"fixture" json:"fixture"`
	Source      string     `yaml:"source" json:"source"`
	Status      Status     `yaml:"status" json:"status"`
	DoctorID    string     `yaml:"doctor_id" json:"doctor_id,omitempty"`
	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	AssignedAt  *time.Time `yaml:"assigned_at" json:"assigned_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at" json:"completed_at,omitempty"`
}

// EffectiveStatus reads a missing status from older records as pending.
func (t *Task) EffectiveStatus() Status {
	if t.Status == "" {
		return StatusPending
	}
	return t.Status
}

// IsLive reports whether the task still blocks a new task for its pair.
func (t *Task) IsLive() bool {
	switch t.EffectiveStatus() {
	case StatusPending, StatusAssigned:
		return true
	}
	return false
}

func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedAt != nil {
		at := *t.AssignedAt
		c.AssignedAt = &at
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		c.CompletedAt = &ct
	}
	return &c
}

// CanAssign reports whether a reviewer may still be recorded: the task is
// live and has none yet.
func (t *Task) CanAssign() bool {
	return t.IsLive() && t.DoctorID == ""
}

// Assign records doctorID as the reviewer.
func (t *Task) Assign(doctorID string, now time.Time) {
	at := now.UTC()
	t.DoctorID = doctorID
	t.Status = StatusAssigned
	t.AssignedAt = &at
}

func (t *Task) Complete(now time.Time) {
	ct := now.UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &ct
}
