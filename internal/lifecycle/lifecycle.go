// Package lifecycle holds the checklist state machine:
// Active -> Trashed -> Active (restore or recover) and any -> HardDeleted.
package lifecycle

import (
	"errors"
	"time"

	"checklists/api/internal/store"
)

type State string

const (
	Active  State = "active"
	Trashed State = "trashed"
	// HardDeleted is terminal. No row remains to observe it on.
	HardDeleted State = "hard_deleted"
)

type Event string

const (
	// Trash is the owner's soft delete.
	Trash Event = "trash"
	// Restore is the owner's undo, accepted only inside RestoreWindow.
	Restore Event = "restore"
	// Recover is the admin undo. It ignores the window.
	Recover Event = "recover"
	// Purge removes the row from any state.
	Purge Event = "purge"
)

var (
	ErrAlreadyTrashed = errors.New("checklist is already trashed")
	ErrNotTrashed     = errors.New("checklist is not trashed")
	ErrWindowClosed   = errors.New("restore window has closed")
	ErrUnknownEvent   = errors.New("unknown lifecycle event")
)

// RestoreWindow is how long a trashed checklist stays restorable by its
// owner. Nothing purges rows after it passes; restore just stops accepting.
const RestoreWindow = 30 * 24 * time.Hour

func StateOf(checklist store.Checklist) State {
	if checklist.DeletedAt != nil {
		return Trashed
	}
	return Active
}

// Apply moves checklist through event at now and returns the resulting
// state. The row's deleted_at and updated_at are set to match; persisting
// them (or deleting the row on Purge) is the caller's job. On error the
// checklist is left untouched.
func Apply(checklist *store.Checklist, event Event, now time.Time) (State, error) {
	from := StateOf(*checklist)
	switch event {
	case Trash:
		if from != Active {
			return from, ErrAlreadyTrashed
		}
		checklist.DeletedAt = &now
	case Restore:
		if from != Trashed {
			return from, ErrNotTrashed
		}
		if !Restorable(*checklist, now) {
			return from, ErrWindowClosed
		}
		checklist.DeletedAt = nil
	case Recover:
		if from != Trashed {
			return from, ErrNotTrashed
		}
		checklist.DeletedAt = nil
	case Purge:
		return HardDeleted, nil
	default:
		return from, ErrUnknownEvent
	}
	checklist.UpdatedAt = now
	return StateOf(*checklist), nil
}

// TrashCutoff is the oldest deleted_at still shown in the trash listing.
func TrashCutoff(now time.Time) time.Time {
	return now.Add(-RestoreWindow)
}

// Restorable reports whether checklist is trashed and still inside the window.
func Restorable(checklist store.Checklist, now time.Time) bool {
	if checklist.DeletedAt == nil {
		return false
	}
	return checklist.DeletedAt.After(TrashCutoff(now))
}
