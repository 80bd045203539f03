package jobs

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-certs/meridian/internal/events"
	_ "github.com/meridian-certs/meridian/testing"
)

func TestNotifyEventTaskRoundTrip(t *testing.T) {
	ev := events.New(events.KindCertMinted, "issuer", "certificate", "42", map[string]any{"owner": "acct:grad-42"})

	task, err := NewNotifyEventTask(ev)
	require.NoError(t, err)
	require.Equal(t, TaskTypeNotifyEvent, task.Type())

	handler := NewNotifyHandler(slog.Default())
	require.NoError(t, handler.Handle(context.Background(), task))
}

func TestNotifyHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewNotifyHandler(nil)
	task := asynq.NewTask(TaskTypeNotifyEvent, []byte("{not json"))

	err := handler.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
