package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer hands events to the background worker as asynq tasks.
type Enqueuer struct {
	client   *asynq.Client
	taskType string
	queue    string
}

// NewEnqueuer constructs an Enqueuer for the given task type and queue.
func NewEnqueuer(client *asynq.Client, taskType, queue string) *Enqueuer {
	return &Enqueuer{client: client, taskType: taskType, queue: queue}
}

// Publish enqueues the event for asynchronous delivery.
func (e *Enqueuer) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	task := asynq.NewTask(e.taskType, payload)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.queue)); err != nil {
		return fmt.Errorf("events: enqueue: %w", err)
	}
	return nil
}
