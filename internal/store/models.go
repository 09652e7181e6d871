package store

import "time"

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

type User struct {
	ID        int64
	Email     string
	Name      string
	Role      string
	Active    bool
	CreatedAt time.Time
	LastLogin *time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

type Checklist struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	IsPublic    bool
	ShareToken  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

type Stats struct {
	SectionCount   int
	ItemCount      int
	CompletedCount int
}

// Progress is the completed share of items as a whole percentage.
func (s Stats) Progress() int {
	if s.ItemCount == 0 {
		return 0
	}
	return s.CompletedCount * 100 / s.ItemCount
}

type ChecklistSummary struct {
	Checklist
	Stats
}

// SharedChecklist is a checklist seen through one of the caller's
// Collaborator rows.
type SharedChecklist struct {
	ChecklistSummary
	Role       string
	OwnerName  string
	OwnerEmail string
	SharedAt   time.Time
}

type ChecklistQuery struct {
	OwnerID int64
	Search  string
	Limit   int
	Offset  int
}

type Section struct {
	ID          int64
	ChecklistID int64
	Name        string
	OrderPos    int
	CreatedAt   time.Time
}

type Item struct {
	ID          int64
	ChecklistID int64
	SectionID   int64
	Text        string
	Completed   bool
	OrderPos    int
	CreatedAt   time.Time
}

type Tag struct {
	ID        int64
	UserID    int64
	Name      string
	Color     string
	Emoji     string
	CreatedAt time.Time
}

// Collaborator carries the member's email and name joined from users.
type Collaborator struct {
	ID          int64
	ChecklistID int64
	UserID      int64
	Role        string
	InvitedBy   *int64
	CreatedAt   time.Time
	Email       string
	Name        string
}

type AuditEntry struct {
	ID        int64
	EventType string
	UserID    *int64
	Details   map[string]any
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

type AuditFilter struct {
	EventType string
	UserID    *int64
	Limit     int
	Offset    int
}

// ChecklistCascade counts the rows removed by a hard delete.
type ChecklistCascade struct {
	Sections      int
	Items         int
	ItemTags      int
	Collaborators int
}

func (c *ChecklistCascade) add(other ChecklistCascade) {
	c.Sections += other.Sections
	c.Items += other.Items
	c.ItemTags += other.ItemTags
	c.Collaborators += other.Collaborators
}

type UserCascade struct {
	Checklists     int
	Owned          ChecklistCascade
	Collaborations int
	Tags           int
	TagLinks       int
}
