package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/lifecycle"
	"checklists/api/internal/quota"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

const checklistsPerPage = 20

type ChecklistInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
}

func (in *ChecklistInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

func (s *Service) CreateChecklist(ctx context.Context, caller *access.Caller, input ChecklistInput) (ChecklistView, error) {
	input.normalize()
	if err := s.check(input); err != nil {
		return ChecklistView{}, s.fail("create checklist", err)
	}
	if err := s.allow(ctx, caller, ratelimit.CreateChecklist); err != nil {
		return ChecklistView{}, err
	}

	now := s.now()
	checklist := store.Checklist{
		OwnerID:     caller.UserID,
		Title:       input.Title,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.quotas.Enforce(ctx, quota.ChecklistsPerOwner, func(ctx context.Context) (int, error) {
			return tx.CountActiveChecklists(ctx, caller.UserID)
		}); err != nil {
			return err
		}
		return tx.InsertChecklist(ctx, &checklist)
	})
	if err != nil {
		return ChecklistView{}, s.fail("create checklist", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ChecklistCreated, map[string]any{
		"checklist_id": checklist.ID,
		"title":        checklist.Title,
	})
	return checklistView(checklist, store.Stats{}, rbac.RoleOwner), nil
}

func (s *Service) UpdateChecklist(ctx context.Context, caller *access.Caller, checklistID int64, input ChecklistInput) (ChecklistView, error) {
	input.normalize()
	if err := s.check(input); err != nil {
		return ChecklistView{}, s.fail("update checklist", err)
	}

	var (
		updated  store.Checklist
		previous store.Checklist
		role     rbac.Role
		stats    store.Stats
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		previous, role, err = s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage)
		if err != nil {
			return err
		}
		updated = previous
		updated.Title = input.Title
		updated.Description = input.Description
		updated.UpdatedAt = s.now()
		if err := tx.UpdateChecklist(ctx, updated); err != nil {
			return err
		}
		stats, err = tx.ChecklistStats(ctx, checklistID)
		return err
	})
	if err != nil {
		return ChecklistView{}, s.fail("update checklist", err)
	}

	details := map[string]any{"checklist_id": checklistID, "title": updated.Title}
	if previous.Title != updated.Title {
		details["old_title"] = previous.Title
	}
	s.recorder.ForCaller(ctx, caller, audit.ChecklistUpdated, details)
	return checklistView(updated, stats, role), nil
}

// GetChecklist returns the full tree for any member.
func (s *Service) GetChecklist(ctx context.Context, caller *access.Caller, checklistID int64) (ChecklistDetail, error) {
	var detail ChecklistDetail
	err := s.store.View(ctx, func(tx store.Tx) error {
		checklist, role, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionRead)
		if err != nil {
			return err
		}
		sections, err := tx.ListSections(ctx, checklistID)
		if err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, checklistID)
		if err != nil {
			return err
		}
		tags, err := tx.ListChecklistItemTags(ctx, checklistID)
		if err != nil {
			return err
		}

		stats := store.Stats{SectionCount: len(sections), ItemCount: len(items)}
		for _, item := range items {
			if item.Completed {
				stats.CompletedCount++
			}
		}
		detail = ChecklistDetail{
			ChecklistView: checklistView(checklist, stats, role),
			Role:          role,
			Sections:      buildSections(sections, items, tags),
		}
		return nil
	})
	if err != nil {
		return ChecklistDetail{}, s.fail("get checklist", err)
	}
	return detail, nil
}

// ListChecklists pages through the caller's own active checklists, most
// recently updated first. Pages start at 1.
func (s *Service) ListChecklists(ctx context.Context, caller *access.Caller, search string, page int) (ChecklistPage, error) {
	if page < 1 {
		page = 1
	}
	search = strings.TrimSpace(search)
	if len(search) > 255 {
		return ChecklistPage{}, s.fail("list checklists", invalidInput("Search is too long", nil))
	}

	var (
		rows  []store.ChecklistSummary
		total int
	)
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, total, err = tx.ListChecklists(ctx, store.ChecklistQuery{
			OwnerID: caller.UserID,
			Search:  search,
			Limit:   checklistsPerPage,
			Offset:  (page - 1) * checklistsPerPage,
		})
		return err
	})
	if err != nil {
		return ChecklistPage{}, s.fail("list checklists", err)
	}

	result := ChecklistPage{
		Checklists: make([]ChecklistView, 0, len(rows)),
		Total:      total,
		Page:       page,
		PerPage:    checklistsPerPage,
		Pages:      (total + checklistsPerPage - 1) / checklistsPerPage,
	}
	for _, row := range rows {
		result.Checklists = append(result.Checklists, checklistView(row.Checklist, row.Stats, rbac.RoleOwner))
	}
	return result, nil
}

func (s *Service) ListSharedChecklists(ctx context.Context, caller *access.Caller) ([]SharedChecklistView, error) {
	var rows []store.SharedChecklist
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.ListSharedChecklists(ctx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, s.fail("list shared checklists", err)
	}

	views := make([]SharedChecklistView, 0, len(rows))
	for _, row := range rows {
		role := rbac.Normalize(row.Role)
		views = append(views, SharedChecklistView{
			ChecklistView: checklistView(row.Checklist, row.Stats, role),
			Role:          string(role),
			OwnerName:     row.OwnerName,
			OwnerEmail:    row.OwnerEmail,
			SharedAt:      row.SharedAt,
		})
	}
	return views, nil
}

// ListTrash returns the caller's checklists that can still be restored,
// newest deletion first.
func (s *Service) ListTrash(ctx context.Context, caller *access.Caller) ([]TrashedChecklistView, error) {
	now := s.now()
	var rows []store.Checklist
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.ListTrashedChecklists(ctx, caller.UserID, lifecycle.TrashCutoff(now))
		return err
	})
	if err != nil {
		return nil, s.fail("list trash", err)
	}

	views := make([]TrashedChecklistView, 0, len(rows))
	for _, row := range rows {
		remaining := row.DeletedAt.Add(lifecycle.RestoreWindow).Sub(now)
		views = append(views, TrashedChecklistView{
			ChecklistView: checklistView(row, store.Stats{}, rbac.RoleOwner),
			DaysRemaining: int((remaining + 24*time.Hour - 1) / (24 * time.Hour)),
		})
	}
	return views, nil
}

// DeleteChecklist moves a checklist to the trash. Only the owner (or an
// admin) may do it.
func (s *Service) DeleteChecklist(ctx context.Context, caller *access.Caller, checklistID int64) error {
	var checklist store.Checklist
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		checklist, _, err = s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage)
		if err != nil {
			return err
		}
		if _, err := lifecycle.Apply(&checklist, lifecycle.Trash, s.now()); err != nil {
			return notFound("Checklist not found")
		}
		return tx.UpdateChecklist(ctx, checklist)
	})
	if err != nil {
		return s.fail("delete checklist", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ChecklistDeleted, map[string]any{
		"checklist_id": checklistID,
		"title":        checklist.Title,
	})
	return nil
}

// RestoreChecklist brings a trashed checklist back within the restore
// window. Collaborators get Forbidden. Everyone else without standing, and
// owners past the window, see NotFound.
func (s *Service) RestoreChecklist(ctx context.Context, caller *access.Caller, checklistID int64) (ChecklistView, error) {
	var (
		checklist store.Checklist
		role      rbac.Role
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
		role, err = caller.Resolve(ctx, tx, checklistID)
		if err != nil {
			return err
		}
		switch {
		case role == rbac.RoleNone:
			return notFound("Checklist not found")
		case !rbac.Can(role, rbac.ActionManage):
			return forbidden("Only the owner can restore this checklist")
		}

		if _, err := lifecycle.Apply(&checklist, lifecycle.Restore, s.now()); err != nil {
			return notFound("Checklist not found in trash")
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
		return ChecklistView{}, s.fail("restore checklist", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ChecklistRestored, map[string]any{
		"checklist_id": checklistID,
		"title":        checklist.Title,
	})
	return checklistView(checklist, stats, role), nil
}

// touch bumps updated_at on the checklist a section or item belongs to.
func (s *Service) touch(ctx context.Context, tx store.Tx, checklistID int64) error {
	return tx.TouchChecklist(ctx, checklistID, s.now())
}
