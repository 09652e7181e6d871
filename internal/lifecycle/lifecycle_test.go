package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"checklists/api/internal/store"
)

func TestRestorable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	cases := []struct {
		name      string
		deletedAt *time.Time
		wantState State
		want      bool
	}{
		{name: "active", deletedAt: nil, wantState: Active, want: false},
		{name: "trashed yesterday", deletedAt: at(24 * time.Hour), wantState: Trashed, want: true},
		{name: "trashed 29 days ago", deletedAt: at(29 * 24 * time.Hour), wantState: Trashed, want: true},
		{name: "exactly at the window", deletedAt: at(RestoreWindow), wantState: Trashed, want: false},
		{name: "trashed 31 days ago", deletedAt: at(31 * 24 * time.Hour), wantState: Trashed, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checklist := store.Checklist{DeletedAt: tc.deletedAt}
			assert.Equal(t, tc.wantState, StateOf(checklist))
			assert.Equal(t, tc.want, Restorable(checklist, now))
		})
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) *time.Time {
		ts := now.Add(-time.Duration(n) * 24 * time.Hour)
		return &ts
	}

	cases := []struct {
		name      string
		deletedAt *time.Time
		event     Event
		want      State
		wantErr   error
	}{
		{name: "trash active", event: Trash, want: Trashed},
		{name: "trash trashed", deletedAt: daysAgo(1), event: Trash, want: Trashed, wantErr: ErrAlreadyTrashed},
		{name: "restore inside window", deletedAt: daysAgo(29), event: Restore, want: Active},
		{name: "restore past window", deletedAt: daysAgo(31), event: Restore, want: Trashed, wantErr: ErrWindowClosed},
		{name: "restore active", event: Restore, want: Active, wantErr: ErrNotTrashed},
		{name: "recover past window", deletedAt: daysAgo(400), event: Recover, want: Active},
		{name: "recover active", event: Recover, want: Active, wantErr: ErrNotTrashed},
		{name: "purge active", event: Purge, want: HardDeleted},
		{name: "purge trashed", deletedAt: daysAgo(3), event: Purge, want: HardDeleted},
		{name: "unknown event", event: Event("archive"), want: Active, wantErr: ErrUnknownEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checklist := store.Checklist{DeletedAt: tc.deletedAt}
			before := checklist

			state, err := Apply(&checklist, tc.event, now)
			assert.Equal(t, tc.want, state)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, before, checklist)
				return
			}
			assert.NoError(t, err)
			if tc.event != Purge {
				assert.Equal(t, tc.want, StateOf(checklist))
				assert.Equal(t, now, checklist.UpdatedAt)
			}
		})
	}
}
