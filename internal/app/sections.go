package app

import (
	"context"
	"strings"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/ordering"
	"checklists/api/internal/quota"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

type SectionInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

type ReorderInput struct {
	IDs []int64 `json:"ids"`
}

func (s *Service) CreateSection(ctx context.Context, caller *access.Caller, checklistID int64, input SectionInput) (SectionView, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return SectionView{}, s.fail("create section", err)
	}
	if err := s.allow(ctx, caller, ratelimit.CreateSection); err != nil {
		return SectionView{}, err
	}

	section := store.Section{ChecklistID: checklistID, Name: input.Name, CreatedAt: s.now()}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionEdit); err != nil {
			return err
		}
		if err := s.quotas.Enforce(ctx, quota.SectionsPerChecklist, func(ctx context.Context) (int, error) {
			return tx.CountSections(ctx, checklistID)
		}); err != nil {
			return err
		}
		pos, err := ordering.NextPosition(ctx, tx, ordering.Sections(checklistID))
		if err != nil {
			return err
		}
		section.OrderPos = pos
		if err := tx.InsertSection(ctx, &section); err != nil {
			return err
		}
		return s.touch(ctx, tx, checklistID)
	})
	if err != nil {
		return SectionView{}, s.fail("create section", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.SectionCreated, map[string]any{
		"checklist_id": checklistID,
		"section_id":   section.ID,
		"name":         section.Name,
	})
	return sectionView(section), nil
}

func (s *Service) RenameSection(ctx context.Context, caller *access.Caller, sectionID int64, input SectionInput) (SectionView, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return SectionView{}, s.fail("rename section", err)
	}

	var (
		section store.Section
		oldName string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		section, _, err = s.requireSection(ctx, tx, caller, sectionID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		oldName = section.Name
		section.Name = input.Name
		if err := tx.RenameSection(ctx, sectionID, input.Name); err != nil {
			return err
		}
		return s.touch(ctx, tx, section.ChecklistID)
	})
	if err != nil {
		return SectionView{}, s.fail("rename section", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.SectionUpdated, map[string]any{
		"checklist_id": section.ChecklistID,
		"section_id":   sectionID,
		"old_name":     oldName,
		"new_name":     section.Name,
	})
	return sectionView(section), nil
}

// DeleteSection removes the section with its items, then closes the gap in
// the checklist's section order.
func (s *Service) DeleteSection(ctx context.Context, caller *access.Caller, sectionID int64) error {
	var (
		section      store.Section
		itemsRemoved int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		section, _, err = s.requireSection(ctx, tx, caller, sectionID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		itemsRemoved, err = tx.DeleteSection(ctx, sectionID)
		if err != nil {
			return err
		}
		if _, err := ordering.Reindex(ctx, tx, ordering.Sections(section.ChecklistID)); err != nil {
			return err
		}
		return s.touch(ctx, tx, section.ChecklistID)
	})
	if err != nil {
		return s.fail("delete section", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.SectionDeleted, map[string]any{
		"checklist_id":  section.ChecklistID,
		"section_id":    sectionID,
		"name":          section.Name,
		"items_deleted": itemsRemoved,
	})
	return nil
}

// ReorderSections applies a full permutation of the checklist's sections.
func (s *Service) ReorderSections(ctx context.Context, caller *access.Caller, checklistID int64, input ReorderInput) error {
	if err := s.check(input); err != nil {
		return s.fail("reorder sections", err)
	}
	if err := s.allow(ctx, caller, ratelimit.Reorder); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionEdit); err != nil {
			return err
		}
		if err := ordering.ApplyReorder(ctx, tx, ordering.Sections(checklistID), input.IDs); err != nil {
			return err
		}
		return s.touch(ctx, tx, checklistID)
	})
	if err != nil {
		return s.fail("reorder sections", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.SectionsReordered, map[string]any{
		"checklist_id": checklistID,
		"order":        input.IDs,
	})
	return nil
}
