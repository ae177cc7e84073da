package tasklog

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// TaskLog is one lifecycle or sync record of a review task.
type TaskLog struct {
	ID        string            `yaml:"id" json:"id"`
	TaskID    string            `yaml:"task_id" json:"task_id"`
	Level     Level             `yaml:"level" json:"level"`
	Event     string            `yaml:"event" json:"event"`
	Message   string            `yaml:"message" json:"message"`
	Metadata  map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt time.Time         `yaml:"created_at" json:"created_at"`
}
