package store

import (
	"context"
	"errors"
	"time"

	"checklists/api/internal/ordering"
)

var (
	// ErrDuplicate marks a write rejected by a uniqueness rule.
	ErrDuplicate = errors.New("duplicate")
	// ErrConstraint marks a write rejected by any other integrity rule.
	ErrConstraint = errors.New("constraint violation")
	ErrReadOnly   = errors.New("write in read-only transaction")
)

// Tx is one unit of work. Lookups of a single row return sql.ErrNoRows when
// the row does not exist. Both PostgresStore and MemoryStore hand out
// implementations through WithTx (read-write) and View (read-only).
type Tx interface {
	ordering.Repository

	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	DeleteUserCascade(ctx context.Context, id int64) (UserCascade, error)

	GetChecklist(ctx context.Context, id int64) (Checklist, error)
	// LockChecklist reads the row and holds it until the transaction ends.
	LockChecklist(ctx context.Context, id int64) (Checklist, error)
	GetChecklistByShareToken(ctx context.Context, token string) (Checklist, error)
	ShareTokenExists(ctx context.Context, token string) (bool, error)
	CountActiveChecklists(ctx context.Context, ownerID int64) (int, error)
	InsertChecklist(ctx context.Context, checklist *Checklist) error
	// UpdateChecklist persists every mutable column of checklist.
	UpdateChecklist(ctx context.Context, checklist Checklist) error
	TouchChecklist(ctx context.Context, id int64, at time.Time) error
	DeleteChecklistCascade(ctx context.Context, id int64) (ChecklistCascade, error)
	ChecklistStats(ctx context.Context, id int64) (Stats, error)
	ListChecklists(ctx context.Context, query ChecklistQuery) ([]ChecklistSummary, int, error)
	ListSharedChecklists(ctx context.Context, userID int64) ([]SharedChecklist, error)
	ListTrashedChecklists(ctx context.Context, ownerID int64, deletedAfter time.Time) ([]Checklist, error)

	GetSection(ctx context.Context, id int64) (Section, error)
	ListSections(ctx context.Context, checklistID int64) ([]Section, error)
	CountSections(ctx context.Context, checklistID int64) (int, error)
	InsertSection(ctx context.Context, section *Section) error
	RenameSection(ctx context.Context, id int64, name string) error
	// DeleteSection removes the section with its items and their tag links,
	// returning the number of items removed.
	DeleteSection(ctx context.Context, id int64) (int, error)

	GetItem(ctx context.Context, id int64) (Item, error)
	// ListItems returns every item of a checklist ordered by section, then position.
	ListItems(ctx context.Context, checklistID int64) ([]Item, error)
	ListItemsByID(ctx context.Context, checklistID int64, ids []int64) ([]Item, error)
	CountItems(ctx context.Context, checklistID int64) (int, error)
	InsertItem(ctx context.Context, item *Item) error
	UpdateItemText(ctx context.Context, id int64, text string) error
	SetItemsCompleted(ctx context.Context, ids []int64, completed bool) error
	// ToggleItemCompleted flips the stored flag and returns the new value.
	ToggleItemCompleted(ctx context.Context, id int64) (bool, error)
	DeleteItems(ctx context.Context, ids []int64) error

	GetTag(ctx context.Context, id int64) (Tag, error)
	ListTags(ctx context.Context, userID int64) ([]Tag, error)
	CountTags(ctx context.Context, userID int64) (int, error)
	TagNameExists(ctx context.Context, userID int64, name string, exceptID int64) (bool, error)
	InsertTag(ctx context.Context, tag *Tag) error
	UpdateTag(ctx context.Context, tag Tag) error
	// DeleteTag removes the tag and returns how many item links went with it.
	DeleteTag(ctx context.Context, id int64) (int, error)
	InsertItemTag(ctx context.Context, itemID, tagID int64) error
	DeleteItemTag(ctx context.Context, itemID, tagID int64) (bool, error)
	ListChecklistItemTags(ctx context.Context, checklistID int64) (map[int64][]Tag, error)

	GetCollaborator(ctx context.Context, checklistID, userID int64) (Collaborator, error)
	ListCollaborators(ctx context.Context, checklistID int64) ([]Collaborator, error)
	CountCollaborators(ctx context.Context, checklistID int64) (int, error)
	InsertCollaborator(ctx context.Context, collaborator *Collaborator) error
	UpdateCollaboratorRole(ctx context.Context, checklistID, userID int64, role string) error
	DeleteCollaborator(ctx context.Context, checklistID, userID int64) error
}

const DefaultAuditPageSize = 50
