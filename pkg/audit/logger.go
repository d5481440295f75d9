package audit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// Record fills request-scoped fields from ctx and logs the event. Failures
// are reported on the application log and never returned: an audit outage
// must not roll back a permission change that already committed.
func Record(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}
	if event.OrganizationID == 0 {
		event.OrganizationID = contextkeys.GetOrgID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.ActorID == nil {
		if id, err := strconv.ParseInt(contextkeys.GetUserID(ctx), 10, 64); err == nil {
			event.ActorID = &id
		}
	}

	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Error("failed to record audit event")
	}
}

// SlogLogger writes audit events to the structured application log
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates an audit logger on top of logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("audit", true)}
}

// Log implements Logger
func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":      string(event.EventType),
		"status":          string(event.Status),
		"organization_id": event.OrganizationID,
		"resource_type":   string(event.ResourceType),
		"resource_id":     event.ResourceID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := l.logger.WithFields(fields)
	if event.Status == StatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close implements Logger
func (l *SlogLogger) Close() error { return nil }

// MultiLogger fans events out to several loggers synchronously
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every destination
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every logger and joins their errors
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
