package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"checklists/api/internal/access"
	"checklists/api/internal/metrics"
	"checklists/api/internal/store"
)

type captureSink struct {
	entries []store.AuditEntry
	ctxErr  error
	err     error
}

func (c *captureSink) AppendAudit(ctx context.Context, entry store.AuditEntry) error {
	c.ctxErr = ctx.Err()
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entry)
	return nil
}

func TestRecordShapesEntry(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink, nil, nil)
	recorder.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	caller := access.NewCaller(store.User{ID: 42}, access.Origin{
		IPAddress: strings.Repeat("1", 60),
		UserAgent: strings.Repeat("a", 600),
		Method:    "POST",
		URI:       "/api/checklists",
	})
	details := map[string]any{"checklist_id": int64(7)}
	recorder.ForCaller(context.Background(), caller, ChecklistCreated, details)

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, ChecklistCreated, entry.EventType)
	require.NotNil(t, entry.UserID)
	assert.EqualValues(t, 42, *entry.UserID)
	assert.Len(t, entry.IPAddress, 45)
	assert.Len(t, entry.UserAgent, 500)
	assert.Equal(t, "POST", entry.Details["request_method"])
	assert.Equal(t, "/api/checklists", entry.Details["request_uri"])
	assert.EqualValues(t, 7, entry.Details["checklist_id"])
	assert.NotContains(t, details, "request_method", "caller's map is not mutated")
	assert.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), entry.CreatedAt)
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Record(ctx, access.Origin{}, UserCreated, nil, nil)

	require.Len(t, sink.entries, 1)
	assert.NoError(t, sink.ctxErr)
	assert.Nil(t, sink.entries[0].UserID)
}

func TestRecordSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sink := &captureSink{err: errors.New("disk full")}
	recorder := NewRecorder(sink, zap.New(core), m)

	userID := int64(9)
	recorder.Record(context.Background(), access.Origin{}, TagDeleted, &userID, map[string]any{"tag_id": 1})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit record failed", entry.Message)
	assert.Equal(t, TagDeleted, entry.ContextMap()["event_type"])
	assert.EqualValues(t, 9, entry.ContextMap()["user_id"])

	expected := `
# HELP checklists_audit_failures_total Audit records that could not be written, by event type.
# TYPE checklists_audit_failures_total counter
checklists_audit_failures_total{event_type="TAG_DELETED"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "checklists_audit_failures_total"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var recorder *Recorder
	recorder.Record(context.Background(), access.Origin{}, UserDeleted, nil, nil)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
}
