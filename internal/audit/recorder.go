// Package audit appends security-relevant events to the audit trail.
//
// Recording is best-effort. It happens after the business transaction has
// committed, and a failure to record never fails the operation it describes.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"checklists/api/internal/access"
	"checklists/api/internal/metrics"
	"checklists/api/internal/store"
)

const (
	maxIPAddress = 45
	maxUserAgent = 500
	writeTimeout = 2 * time.Second
)

// Sink persists entries. Both store engines implement it.
type Sink interface {
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
}

type Recorder struct {
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(sink Sink, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, metrics: m, now: time.Now}
}

// Record writes one entry. userID is nil for anonymous events. The write is
// detached from ctx cancellation so a client hanging up right after a commit
// still leaves a record.
func (r *Recorder) Record(ctx context.Context, origin access.Origin, eventType string, userID *int64, details map[string]any) {
	if r == nil || r.sink == nil {
		return
	}

	payload := make(map[string]any, len(details)+2)
	for k, v := range details {
		payload[k] = v
	}
	if origin.Method != "" {
		payload["request_method"] = origin.Method
	}
	if origin.URI != "" {
		payload["request_uri"] = origin.URI
	}

	entry := store.AuditEntry{
		EventType: eventType,
		UserID:    userID,
		Details:   payload,
		IPAddress: Truncate(origin.IPAddress, maxIPAddress),
		UserAgent: Truncate(origin.UserAgent, maxUserAgent),
		CreatedAt: r.now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.sink.AppendAudit(writeCtx, entry); err != nil {
		r.metrics.AuditFailed(eventType)
		fields := []zap.Field{zap.String("event_type", eventType), zap.Error(err)}
		if userID != nil {
			fields = append(fields, zap.Int64("user_id", *userID))
		}
		r.logger.Error("audit record failed", fields...)
	}
}

// ForCaller records an event attributed to caller.
func (r *Recorder) ForCaller(ctx context.Context, caller *access.Caller, eventType string, details map[string]any) {
	if caller == nil {
		r.Record(ctx, access.Origin{}, eventType, nil, details)
		return
	}
	userID := caller.UserID
	r.Record(ctx, caller.Origin, eventType, &userID, details)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
