package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-certs/meridian/internal/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyEvent delivers one registry event to subscribers.
	TaskTypeNotifyEvent = "event:notify"
)

// NewNotifyEventTask wraps a registry event in an Asynq task.
func NewNotifyEventTask(ev events.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyEvent, data), nil
}

// NotifyHandler renders registry events for downstream consumers.
type NotifyHandler struct {
	logger  *slog.Logger
	printer *message.Printer
}

// NewNotifyHandler constructs a NotifyHandler.
func NewNotifyHandler(logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{logger: logger, printer: message.NewPrinter(language.English)}
}

// Handle processes TaskTypeNotifyEvent tasks.
func (h *NotifyHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return asynq.SkipRetry
	}
	line := h.printer.Sprintf("%s by %s on %s %s", ev.Kind, ev.Actor, ev.Entity, ev.EntityID)
	if h.logger != nil {
		h.logger.Info("registry event", slog.String("summary", line), slog.Time("at", ev.At))
	}
	// TODO: deliver to configured webhook endpoints once the indexer
	// contract is settled.
	return nil
}
