package app

import (
	"context"
	"sort"
	"strings"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/ordering"
	"checklists/api/internal/quota"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

type ItemInput struct {
	Text string `json:"text" validate:"required,max=1000"`
}

const (
	BulkComplete   = "complete"
	BulkIncomplete = "incomplete"
	BulkDelete     = "delete"
)

type BulkItemsInput struct {
	Action  string  `json:"action" validate:"required,oneof=complete incomplete delete"`
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1,max=1000"`
}

type BulkResult struct {
	Action   string `json:"action"`
	Affected int    `json:"affected"`
}

func (s *Service) CreateItem(ctx context.Context, caller *access.Caller, sectionID int64, input ItemInput) (ItemView, error) {
	input.Text = strings.TrimSpace(input.Text)
	if err := s.check(input); err != nil {
		return ItemView{}, s.fail("create item", err)
	}
	if err := s.allow(ctx, caller, ratelimit.CreateItem); err != nil {
		return ItemView{}, err
	}

	var item store.Item
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		section, _, err := s.requireSection(ctx, tx, caller, sectionID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		if err := s.quotas.Enforce(ctx, quota.ItemsPerChecklist, func(ctx context.Context) (int, error) {
			return tx.CountItems(ctx, section.ChecklistID)
		}); err != nil {
			return err
		}
		pos, err := ordering.NextPosition(ctx, tx, ordering.Items(sectionID))
		if err != nil {
			return err
		}
		item = store.Item{
			ChecklistID: section.ChecklistID,
			SectionID:   sectionID,
			Text:        input.Text,
			OrderPos:    pos,
			CreatedAt:   s.now(),
		}
		if err := tx.InsertItem(ctx, &item); err != nil {
			return err
		}
		return s.touch(ctx, tx, section.ChecklistID)
	})
	if err != nil {
		return ItemView{}, s.fail("create item", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemCreated, map[string]any{
		"checklist_id": item.ChecklistID,
		"section_id":   sectionID,
		"item_id":      item.ID,
		"text":         excerpt(item.Text),
	})
	return itemView(item, nil), nil
}

func (s *Service) UpdateItem(ctx context.Context, caller *access.Caller, itemID int64, input ItemInput) (ItemView, error) {
	input.Text = strings.TrimSpace(input.Text)
	if err := s.check(input); err != nil {
		return ItemView{}, s.fail("update item", err)
	}

	var (
		item    store.Item
		oldText string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, _, err = s.requireItem(ctx, tx, caller, itemID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		oldText = item.Text
		item.Text = input.Text
		if err := tx.UpdateItemText(ctx, itemID, input.Text); err != nil {
			return err
		}
		return s.touch(ctx, tx, item.ChecklistID)
	})
	if err != nil {
		return ItemView{}, s.fail("update item", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemUpdated, map[string]any{
		"checklist_id": item.ChecklistID,
		"item_id":      itemID,
		"old_text":     excerpt(oldText),
		"new_text":     excerpt(item.Text),
	})
	return itemView(item, nil), nil
}

// ToggleItem flips the completed flag. The flip happens in the store so
// concurrent toggles never compute from the same read.
func (s *Service) ToggleItem(ctx context.Context, caller *access.Caller, itemID int64) (ItemView, error) {
	var item store.Item
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, _, err = s.requireItem(ctx, tx, caller, itemID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		if item.Completed, err = tx.ToggleItemCompleted(ctx, itemID); err != nil {
			return err
		}
		return s.touch(ctx, tx, item.ChecklistID)
	})
	if err != nil {
		return ItemView{}, s.fail("toggle item", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemToggled, map[string]any{
		"checklist_id": item.ChecklistID,
		"item_id":      itemID,
		"completed":    item.Completed,
		"text":         excerpt(item.Text),
	})
	return itemView(item, nil), nil
}

func (s *Service) DeleteItem(ctx context.Context, caller *access.Caller, itemID int64) error {
	var item store.Item
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, _, err = s.requireItem(ctx, tx, caller, itemID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, []int64{itemID}); err != nil {
			return err
		}
		if _, err := ordering.Reindex(ctx, tx, ordering.Items(item.SectionID)); err != nil {
			return err
		}
		return s.touch(ctx, tx, item.ChecklistID)
	})
	if err != nil {
		return s.fail("delete item", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemDeleted, map[string]any{
		"checklist_id": item.ChecklistID,
		"section_id":   item.SectionID,
		"item_id":      itemID,
		"text":         excerpt(item.Text),
	})
	return nil
}

// ReorderItems applies a full permutation of one section's items.
func (s *Service) ReorderItems(ctx context.Context, caller *access.Caller, sectionID int64, input ReorderInput) error {
	if err := s.check(input); err != nil {
		return s.fail("reorder items", err)
	}
	if err := s.allow(ctx, caller, ratelimit.Reorder); err != nil {
		return err
	}

	var section store.Section
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		section, _, err = s.requireSection(ctx, tx, caller, sectionID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		if err := ordering.ApplyReorder(ctx, tx, ordering.Items(sectionID), input.IDs); err != nil {
			return err
		}
		return s.touch(ctx, tx, section.ChecklistID)
	})
	if err != nil {
		return s.fail("reorder items", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemsReordered, map[string]any{
		"checklist_id": section.ChecklistID,
		"section_id":   sectionID,
		"order":        input.IDs,
	})
	return nil
}

// BulkUpdateItems completes, reopens or deletes a set of items in one
// checklist. Any id outside the checklist fails the whole request.
func (s *Service) BulkUpdateItems(ctx context.Context, caller *access.Caller, checklistID int64, input BulkItemsInput) (BulkResult, error) {
	input.Action = strings.TrimSpace(input.Action)
	if err := s.check(input); err != nil {
		return BulkResult{}, s.fail("bulk update items", err)
	}
	ids := uniqueIDs(input.ItemIDs)

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionEdit); err != nil {
			return err
		}
		items, err := tx.ListItemsByID(ctx, checklistID, ids)
		if err != nil {
			return err
		}
		if len(items) != len(ids) {
			return invalidInput("Some items do not belong to this checklist", nil)
		}

		switch input.Action {
		case BulkComplete, BulkIncomplete:
			if err := tx.SetItemsCompleted(ctx, ids, input.Action == BulkComplete); err != nil {
				return err
			}
		case BulkDelete:
			if err := tx.DeleteItems(ctx, ids); err != nil {
				return err
			}
			for _, sectionID := range sectionsOf(items) {
				if _, err := ordering.Reindex(ctx, tx, ordering.Items(sectionID)); err != nil {
					return err
				}
			}
		}
		return s.touch(ctx, tx, checklistID)
	})
	if err != nil {
		return BulkResult{}, s.fail("bulk update items", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.ItemsBulkUpdate, map[string]any{
		"checklist_id": checklistID,
		"action":       input.Action,
		"item_ids":     ids,
		"count":        len(ids),
	})
	return BulkResult{Action: input.Action, Affected: len(ids)}, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sectionsOf returns the distinct sections of items in ascending id order,
// so concurrent bulk deletes lock sections in the same sequence.
func sectionsOf(items []store.Item) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, item := range items {
		if _, ok := seen[item.SectionID]; ok {
			continue
		}
		seen[item.SectionID] = struct{}{}
		out = append(out, item.SectionID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
