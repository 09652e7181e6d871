package app

import (
	"time"

	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

type ChecklistView struct {
	ID             int64      `json:"id"`
	OwnerID        int64      `json:"owner_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	IsPublic       bool       `json:"is_public"`
	ShareToken     string     `json:"share_token,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	SectionCount   int        `json:"section_count"`
	ItemCount      int        `json:"item_count"`
	CompletedCount int        `json:"completed_count"`
	Progress       int        `json:"progress"`
}

// checklistView projects a checklist. The share token is only shown to
// roles that can manage sharing.
func checklistView(checklist store.Checklist, stats store.Stats, role rbac.Role) ChecklistView {
	view := ChecklistView{
		ID:             checklist.ID,
		OwnerID:        checklist.OwnerID,
		Title:          checklist.Title,
		Description:    checklist.Description,
		IsPublic:       checklist.IsPublic,
		CreatedAt:      checklist.CreatedAt,
		UpdatedAt:      checklist.UpdatedAt,
		DeletedAt:      checklist.DeletedAt,
		SectionCount:   stats.SectionCount,
		ItemCount:      stats.ItemCount,
		CompletedCount: stats.CompletedCount,
		Progress:       stats.Progress(),
	}
	if checklist.ShareToken != nil && rbac.Can(role, rbac.ActionManage) {
		view.ShareToken = *checklist.ShareToken
	}
	return view
}

type ChecklistPage struct {
	Checklists []ChecklistView `json:"checklists"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Pages      int             `json:"pages"`
}

type SharedChecklistView struct {
	ChecklistView
	Role       string    `json:"role"`
	OwnerName  string    `json:"owner_name"`
	OwnerEmail string    `json:"owner_email"`
	SharedAt   time.Time `json:"shared_at"`
}

type TrashedChecklistView struct {
	ChecklistView
	DaysRemaining int `json:"days_remaining"`
}

type TagView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

func tagView(tag store.Tag) TagView {
	return TagView{ID: tag.ID, Name: tag.Name, Color: tag.Color, Emoji: tag.Emoji}
}

type ItemView struct {
	ID        int64     `json:"id"`
	SectionID int64     `json:"section_id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	OrderPos  int       `json:"order_pos"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []TagView `json:"tags"`
}

func itemView(item store.Item, tags []store.Tag) ItemView {
	view := ItemView{
		ID:        item.ID,
		SectionID: item.SectionID,
		Text:      item.Text,
		Completed: item.Completed,
		OrderPos:  item.OrderPos,
		CreatedAt: item.CreatedAt,
		Tags:      make([]TagView, 0, len(tags)),
	}
	for _, tag := range tags {
		view.Tags = append(view.Tags, tagView(tag))
	}
	return view
}

type SectionView struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	OrderPos  int        `json:"order_pos"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []ItemView `json:"items"`
}

func sectionView(section store.Section) SectionView {
	return SectionView{
		ID:        section.ID,
		Name:      section.Name,
		OrderPos:  section.OrderPos,
		CreatedAt: section.CreatedAt,
		Items:     []ItemView{},
	}
}

// ChecklistDetail is the full tree a member sees.
type ChecklistDetail struct {
	ChecklistView
	Role     rbac.Role     `json:"role"`
	Sections []SectionView `json:"sections"`
}

// buildSections nests items under their sections. items must already be in
// section then position order.
func buildSections(sections []store.Section, items []store.Item, tags map[int64][]store.Tag) []SectionView {
	views := make([]SectionView, 0, len(sections))
	index := make(map[int64]int, len(sections))
	for _, section := range sections {
		index[section.ID] = len(views)
		views = append(views, sectionView(section))
	}
	for _, item := range items {
		i, ok := index[item.SectionID]
		if !ok {
			continue
		}
		views[i].Items = append(views[i].Items, itemView(item, tags[item.ID]))
	}
	return views
}

type PublicTag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

type PublicItem struct {
	Text      string      `json:"text"`
	Completed bool        `json:"completed"`
	Tags      []PublicTag `json:"tags"`
}

type PublicSection struct {
	Name  string       `json:"name"`
	Items []PublicItem `json:"items"`
}

// PublicChecklist is the read-only projection behind a share link. It
// carries no ids, no role and nothing that invites a write.
type PublicChecklist struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	OwnerName      string          `json:"owner_name"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ItemCount      int             `json:"item_count"`
	CompletedCount int             `json:"completed_count"`
	Progress       int             `json:"progress"`
	Sections       []PublicSection `json:"sections"`
}

type MemberView struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	InvitedBy *int64    `json:"invited_by,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

func collaboratorView(collaborator store.Collaborator) MemberView {
	return MemberView{
		UserID:    collaborator.UserID,
		Email:     collaborator.Email,
		Name:      collaborator.Name,
		Role:      rbac.Normalize(collaborator.Role),
		InvitedBy: collaborator.InvitedBy,
		AddedAt:   collaborator.CreatedAt,
	}
}

type UserView struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func userView(user store.User) UserView {
	return UserView{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}
