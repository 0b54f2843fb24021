package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/event-auth/internal/events"
)

// StartAuditWorker subscribes a structured audit log to every account event.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil || logger == nil {
		return
	}
	audit := logger.Named("audit")

	handler := func(_ context.Context, e events.Event) error {
		fields := []zap.Field{
			zap.String("event_id", e.ID),
			zap.String("event", string(e.Type)),
			zap.Time("at", e.Timestamp),
		}
		if e.SubjectID != "" {
			fields = append(fields, zap.String("subject_id", e.SubjectID))
		}
		if e.Payload != nil {
			fields = append(fields, zap.Any("payload", e.Payload))
		}

		if e.Type == events.EventLoginFailed {
			audit.Warn("account event", fields...)
		} else {
			audit.Info("account event", fields...)
		}
		return nil
	}

	for _, t := range []events.EventType{
		events.EventUserRegistered,
		events.EventUserLoggedIn,
		events.EventLoginFailed,
		events.EventRoleChanged,
	} {
		dispatcher.Subscribe(t, handler)
	}
}
