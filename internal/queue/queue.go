// internal/queue/queue.go
package queue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DispatchJob asks a worker to dispatch one scheduled message immediately.
// The conditional status transition in the store makes processing the same
// job twice harmless.
type DispatchJob struct {
	ScheduledMessageID string `json:"scheduled_message_id"`
}

// JobPublisher hands dispatch jobs to whoever processes them: a RabbitMQ
// queue in production, or the in-process fallback.
type JobPublisher interface {
	PublishDispatchJob(id string) error
}

// InMemoryQueue runs dispatch jobs in-process when no broker is
// configured.
type InMemoryQueue struct {
	mu      sync.Mutex
	handler func(DispatchJob)
	log     zerolog.Logger
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{log: log}
}

func (q *InMemoryQueue) SetHandler(h func(DispatchJob)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

func (q *InMemoryQueue) PublishDispatchJob(id string) error {
	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()

	if h == nil {
		return fmt.Errorf("no handler registered for dispatch jobs")
	}

	q.log.Debug().Str("message_id", id).Msg("processing dispatch job in-process")
	go h(DispatchJob{ScheduledMessageID: id})
	return nil
}

var _ JobPublisher = (*InMemoryQueue)(nil)
