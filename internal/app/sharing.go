package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/lifecycle"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
	"checklists/api/internal/util"
)

const shareTokenAttempts = 5

func (s *Service) EnablePublicSharing(ctx context.Context, caller *access.Caller, checklistID int64) (ChecklistView, error) {
	var (
		checklist store.Checklist
		stats     store.Stats
		role      rbac.Role
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		checklist, role, err = s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage)
		if err != nil {
			return err
		}
		if checklist.IsPublic {
			return conflict("Checklist is already public")
		}
		token, err := s.uniqueShareToken(ctx, tx)
		if err != nil {
			return err
		}
		checklist.IsPublic = true
		checklist.ShareToken = &token
		checklist.UpdatedAt = s.now()
		if err := tx.UpdateChecklist(ctx, checklist); err != nil {
			return err
		}
		stats, err = tx.ChecklistStats(ctx, checklistID)
		return err
	})
	if err != nil {
		return ChecklistView{}, s.fail("enable public sharing", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.PublicSharingEnabled, map[string]any{
		"checklist_id": checklistID,
		"title":        checklist.Title,
	})
	return checklistView(checklist, stats, role), nil
}

// uniqueShareToken draws tokens until one is unused.
func (s *Service) uniqueShareToken(ctx context.Context, tx store.Tx) (string, error) {
	for attempt := 0; attempt < shareTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", err
		}
		taken, err := tx.ShareTokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", fmt.Errorf("no unused share token after %d attempts", shareTokenAttempts)
}

func (s *Service) DisablePublicSharing(ctx context.Context, caller *access.Caller, checklistID int64) (ChecklistView, error) {
	var (
		checklist store.Checklist
		stats     store.Stats
		role      rbac.Role
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		checklist, role, err = s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage)
		if err != nil {
			return err
		}
		if !checklist.IsPublic {
			return conflict("Checklist is not public")
		}
		checklist.IsPublic = false
		checklist.ShareToken = nil
		checklist.UpdatedAt = s.now()
		if err := tx.UpdateChecklist(ctx, checklist); err != nil {
			return err
		}
		stats, err = tx.ChecklistStats(ctx, checklistID)
		return err
	})
	if err != nil {
		return ChecklistView{}, s.fail("disable public sharing", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.PublicSharingDisabled, map[string]any{
		"checklist_id": checklistID,
		"title":        checklist.Title,
	})
	return checklistView(checklist, stats, role), nil
}

// GetPublicChecklist serves a share link. It needs no caller. Private,
// trashed and unknown checklists all look the same from outside.
func (s *Service) GetPublicChecklist(ctx context.Context, token string) (PublicChecklist, error) {
	if !util.ValidShareToken(token) {
		return PublicChecklist{}, s.fail("get public checklist", invalidInput("Invalid share token", nil))
	}

	var view PublicChecklist
	err := s.store.View(ctx, func(tx store.Tx) error {
		checklist, err := tx.GetChecklistByShareToken(ctx, token)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Checklist not found")
		}
		if err != nil {
			return err
		}
		if !checklist.IsPublic || lifecycle.StateOf(checklist) != lifecycle.Active {
			return notFound("Checklist not found")
		}
		owner, err := tx.GetUser(ctx, checklist.OwnerID)
		if err != nil {
			return err
		}
		sections, err := tx.ListSections(ctx, checklist.ID)
		if err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, checklist.ID)
		if err != nil {
			return err
		}
		tags, err := tx.ListChecklistItemTags(ctx, checklist.ID)
		if err != nil {
			return err
		}
		view = publicChecklist(checklist, owner, sections, items, tags)
		return nil
	})
	if err != nil {
		return PublicChecklist{}, s.fail("get public checklist", err)
	}
	return view, nil
}

func publicChecklist(checklist store.Checklist, owner store.User, sections []store.Section, items []store.Item, tags map[int64][]store.Tag) PublicChecklist {
	view := PublicChecklist{
		Title:       checklist.Title,
		Description: checklist.Description,
		OwnerName:   owner.Name,
		UpdatedAt:   checklist.UpdatedAt,
		Sections:    make([]PublicSection, 0, len(sections)),
	}
	stats := store.Stats{SectionCount: len(sections)}
	for _, section := range buildSections(sections, items, tags) {
		public := PublicSection{Name: section.Name, Items: make([]PublicItem, 0, len(section.Items))}
		for _, item := range section.Items {
			stats.ItemCount++
			if item.Completed {
				stats.CompletedCount++
			}
			publicItem := PublicItem{Text: item.Text, Completed: item.Completed, Tags: make([]PublicTag, 0, len(item.Tags))}
			for _, tag := range item.Tags {
				publicItem.Tags = append(publicItem.Tags, PublicTag{Name: tag.Name, Color: tag.Color, Emoji: tag.Emoji})
			}
			public.Items = append(public.Items, publicItem)
		}
		view.Sections = append(view.Sections, public)
	}
	view.ItemCount = stats.ItemCount
	view.CompletedCount = stats.CompletedCount
	view.Progress = stats.Progress()
	return view
}
