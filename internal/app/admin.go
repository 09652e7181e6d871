package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/lifecycle"
	"checklists/api/internal/quota"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

const maxAuditPageSize = 200

type HardDeleteResult struct {
	ChecklistID   int64 `json:"checklist_id"`
	Sections      int   `json:"sections"`
	Items         int   `json:"items"`
	ItemTags      int   `json:"item_tags"`
	Collaborators int   `json:"collaborators"`
}

// HardDeleteChecklist removes a checklist and everything under it, trashed
// or not. Admin only.
func (s *Service) HardDeleteChecklist(ctx context.Context, caller *access.Caller, checklistID int64) (HardDeleteResult, error) {
	if err := requireAdmin(caller); err != nil {
		return HardDeleteResult{}, s.fail("hard delete checklist", err)
	}

	var (
		checklist store.Checklist
		from      lifecycle.State
		removed   store.ChecklistCascade
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		checklist, err = tx.LockChecklist(ctx, checklistID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Checklist not found")
		}
		if err != nil {
			return err
		}
		from = lifecycle.StateOf(checklist)
		if _, err := lifecycle.Apply(&checklist, lifecycle.Purge, s.now()); err != nil {
			return err
		}
		removed, err = tx.DeleteChecklistCascade(ctx, checklistID)
		return err
	})
	if err != nil {
		return HardDeleteResult{}, s.fail("hard delete checklist", err)
	}
	caller.Forget(checklistID)

	s.recorder.ForCaller(ctx, caller, audit.ChecklistHardDeleted, map[string]any{
		"checklist_id":  checklistID,
		"title":         checklist.Title,
		"owner_id":      checklist.OwnerID,
		"was_trashed":   from == lifecycle.Trashed,
		"sections":      removed.Sections,
		"items":         removed.Items,
		"item_tags":     removed.ItemTags,
		"collaborators": removed.Collaborators,
	})
	return HardDeleteResult{
		ChecklistID:   checklistID,
		Sections:      removed.Sections,
		Items:         removed.Items,
		ItemTags:      removed.ItemTags,
		Collaborators: removed.Collaborators,
	}, nil
}

// RecoverChecklist restores a trashed checklist regardless of how long ago
// it was deleted. Admin only.
func (s *Service) RecoverChecklist(ctx context.Context, caller *access.Caller, checklistID int64) (ChecklistView, error) {
	if err := requireAdmin(caller); err != nil {
		return ChecklistView{}, s.fail("recover checklist", err)
	}

	var (
		checklist store.Checklist
		deletedAt time.Time
		stats     store.Stats
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		checklist, err = tx.LockChecklist(ctx, checklistID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Checklist not found")
		}
		if err != nil {
			return err
		}
		if checklist.DeletedAt != nil {
			deletedAt = *checklist.DeletedAt
		}
		if _, err := lifecycle.Apply(&checklist, lifecycle.Recover, s.now()); err != nil {
			return conflict("Checklist is not in the trash")
		}
		if err := s.quotas.Enforce(ctx, quota.ChecklistsPerOwner, func(ctx context.Context) (int, error) {
			return tx.CountActiveChecklists(ctx, checklist.OwnerID)
		}); err != nil {
			return err
		}
		if err := tx.UpdateChecklist(ctx, checklist); err != nil {
			return err
		}
		stats, err = tx.ChecklistStats(ctx, checklistID)
		return err
	})
	if err != nil {
		return ChecklistView{}, s.fail("recover checklist", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ChecklistRecovered, map[string]any{
		"checklist_id": checklistID,
		"title":        checklist.Title,
		"owner_id":     checklist.OwnerID,
		"deleted_at":   deletedAt.Format(time.RFC3339),
	})
	return checklistView(checklist, stats, rbac.RoleAdmin), nil
}

type AuditQuery struct {
	EventType string
	UserID    *int64
	Page      int
	PerPage   int
}

type AuditEntryView struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	UserID    *int64         `json:"user_id"`
	Details   map[string]any `json:"details"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

type AuditPage struct {
	Entries []AuditEntryView `json:"entries"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// ListAuditLog pages through the trail, newest first. Admin only.
func (s *Service) ListAuditLog(ctx context.Context, caller *access.Caller, query AuditQuery) (AuditPage, error) {
	if err := requireAdmin(caller); err != nil {
		return AuditPage{}, s.fail("list audit log", err)
	}
	if query.Page < 1 {
		query.Page = 1
	}
	switch {
	case query.PerPage <= 0:
		query.PerPage = store.DefaultAuditPageSize
	case query.PerPage > maxAuditPageSize:
		query.PerPage = maxAuditPageSize
	}

	entries, total, err := s.store.ListAudit(ctx, store.AuditFilter{
		EventType: query.EventType,
		UserID:    query.UserID,
		Limit:     query.PerPage,
		Offset:    (query.Page - 1) * query.PerPage,
	})
	if err != nil {
		return AuditPage{}, s.fail("list audit log", err)
	}

	result := AuditPage{
		Entries: make([]AuditEntryView, 0, len(entries)),
		Total:   total,
		Page:    query.Page,
		PerPage: query.PerPage,
	}
	for _, entry := range entries {
		result.Entries = append(result.Entries, AuditEntryView{
			ID:        entry.ID,
			EventType: entry.EventType,
			UserID:    entry.UserID,
			Details:   entry.Details,
			IPAddress: entry.IPAddress,
			UserAgent: entry.UserAgent,
			CreatedAt: entry.CreatedAt,
		})
	}
	return result, nil
}

type UserDeleteResult struct {
	UserID         int64 `json:"user_id"`
	Checklists     int   `json:"checklists"`
	Sections       int   `json:"sections"`
	Items          int   `json:"items"`
	Collaborations int   `json:"collaborations"`
	Tags           int   `json:"tags"`
}

// DeleteUser removes a user with everything they own. Admins cannot delete
// themselves.
func (s *Service) DeleteUser(ctx context.Context, caller *access.Caller, userID int64) (UserDeleteResult, error) {
	if err := requireAdmin(caller); err != nil {
		return UserDeleteResult{}, s.fail("delete user", err)
	}
	if userID == caller.UserID {
		return UserDeleteResult{}, s.fail("delete user", invalidInput("You cannot delete your own account", nil))
	}

	var (
		user    store.User
		removed store.UserCascade
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("User not found")
		}
		if err != nil {
			return err
		}
		removed, err = tx.DeleteUserCascade(ctx, userID)
		return err
	})
	if err != nil {
		return UserDeleteResult{}, s.fail("delete user", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.UserDeleted, map[string]any{
		"target_user_id": userID,
		"email":          user.Email,
		"checklists":     removed.Checklists,
		"sections":       removed.Owned.Sections,
		"items":          removed.Owned.Items,
		"collaborations": removed.Collaborations,
		"tags":           removed.Tags,
		"tag_links":      removed.TagLinks,
	})
	return UserDeleteResult{
		UserID:         userID,
		Checklists:     removed.Checklists,
		Sections:       removed.Owned.Sections,
		Items:          removed.Owned.Items,
		Collaborations: removed.Collaborations,
		Tags:           removed.Tags,
	}, nil
}

type UserUpdateInput struct {
	Role   *string `json:"role" validate:"omitempty,oneof=user admin"`
	Active *bool   `json:"active"`
}

// UpdateUser changes a user's global role or active flag. Admins cannot
// demote or deactivate themselves.
func (s *Service) UpdateUser(ctx context.Context, caller *access.Caller, userID int64, input UserUpdateInput) (UserView, error) {
	if err := requireAdmin(caller); err != nil {
		return UserView{}, s.fail("update user", err)
	}
	if err := s.check(input); err != nil {
		return UserView{}, s.fail("update user", err)
	}
	if userID == caller.UserID {
		if input.Role != nil && *input.Role != store.UserRoleAdmin {
			return UserView{}, s.fail("update user", invalidInput("You cannot remove your own admin role", nil))
		}
		if input.Active != nil && !*input.Active {
			return UserView{}, s.fail("update user", invalidInput("You cannot deactivate your own account", nil))
		}
	}

	var (
		user    store.User
		changes = map[string]any{}
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("User not found")
		}
		if err != nil {
			return err
		}
		if input.Role != nil && *input.Role != user.Role {
			changes["old_role"], changes["new_role"] = user.Role, *input.Role
			user.Role = *input.Role
		}
		if input.Active != nil && *input.Active != user.Active {
			changes["old_active"], changes["new_active"] = user.Active, *input.Active
			user.Active = *input.Active
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return UserView{}, s.fail("update user", err)
	}

	if len(changes) > 0 {
		changes["target_user_id"] = userID
		changes["email"] = user.Email
		s.recorder.ForCaller(ctx, caller, audit.UserUpdated, changes)
	}
	return userView(user), nil
}
