package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	TaskCreated        EventType = "task.created"
	TaskAssigned       EventType = "task.assigned"
	TaskPlatformSynced EventType = "task.platform_synced"
	TaskSyncFailed     EventType = "task.sync_failed"
	TaskCompleted      EventType = "task.completed"
)

type Event struct {
	ID         string
	Type       EventType
	ResourceID string
	Message    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishNew publishes an event about a task. A nil Bus drops it.
func (b *Bus) PublishNew(eventType EventType, taskID, message string, metadata map[string]string) {
	if b == nil {
		return
	}
	b.Publish(&Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		ResourceID: taskID,
		Message:    message,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	})
}
