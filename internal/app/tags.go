package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/quota"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

const (
	DefaultTagColor = "#007bff"
	DefaultTagEmoji = "🏷️"
)

type TagInput struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"max=32,tagcolor"`
	Emoji string `json:"emoji" validate:"max=10"`
}

func (in *TagInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	in.Emoji = strings.TrimSpace(in.Emoji)
	if in.Color == "" {
		in.Color = DefaultTagColor
	}
	if in.Emoji == "" {
		in.Emoji = DefaultTagEmoji
	}
}

func (s *Service) ListTags(ctx context.Context, caller *access.Caller) ([]TagView, error) {
	var tags []store.Tag
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		tags, err = tx.ListTags(ctx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, s.fail("list tags", err)
	}
	views := make([]TagView, 0, len(tags))
	for _, tag := range tags {
		views = append(views, tagView(tag))
	}
	return views, nil
}

func (s *Service) CreateTag(ctx context.Context, caller *access.Caller, input TagInput) (TagView, error) {
	input.normalize()
	if err := s.check(input); err != nil {
		return TagView{}, s.fail("create tag", err)
	}
	if err := s.allow(ctx, caller, ratelimit.CreateTag); err != nil {
		return TagView{}, err
	}

	tag := store.Tag{
		UserID:    caller.UserID,
		Name:      input.Name,
		Color:     input.Color,
		Emoji:     input.Emoji,
		CreatedAt: s.now(),
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		taken, err := tx.TagNameExists(ctx, caller.UserID, input.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return conflict("A tag with this name already exists")
		}
		if err := s.quotas.Enforce(ctx, quota.TagsPerUser, func(ctx context.Context) (int, error) {
			return tx.CountTags(ctx, caller.UserID)
		}); err != nil {
			return err
		}
		return tx.InsertTag(ctx, &tag)
	})
	if err != nil {
		return TagView{}, s.fail("create tag", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.TagCreated, map[string]any{
		"tag_id": tag.ID,
		"name":   tag.Name,
		"color":  tag.Color,
	})
	return tagView(tag), nil
}

func (s *Service) UpdateTag(ctx context.Context, caller *access.Caller, tagID int64, input TagInput) (TagView, error) {
	input.normalize()
	if err := s.check(input); err != nil {
		return TagView{}, s.fail("update tag", err)
	}

	var (
		tag     store.Tag
		oldName string
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		tag, err = s.ownTag(ctx, tx, caller, tagID)
		if err != nil {
			return err
		}
		taken, err := tx.TagNameExists(ctx, tag.UserID, input.Name, tagID)
		if err != nil {
			return err
		}
		if taken {
			return conflict("A tag with this name already exists")
		}
		oldName = tag.Name
		tag.Name = input.Name
		tag.Color = input.Color
		tag.Emoji = input.Emoji
		return tx.UpdateTag(ctx, tag)
	})
	if err != nil {
		return TagView{}, s.fail("update tag", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.TagUpdated, map[string]any{
		"tag_id":   tagID,
		"old_name": oldName,
		"new_name": tag.Name,
	})
	return tagView(tag), nil
}

func (s *Service) DeleteTag(ctx context.Context, caller *access.Caller, tagID int64) error {
	var (
		tag   store.Tag
		links int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		tag, err = s.ownTag(ctx, tx, caller, tagID)
		if err != nil {
			return err
		}
		links, err = tx.DeleteTag(ctx, tagID)
		return err
	})
	if err != nil {
		return s.fail("delete tag", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.TagDeleted, map[string]any{
		"tag_id":         tagID,
		"name":           tag.Name,
		"items_untagged": links,
	})
	return nil
}

// AssignTag links one of the caller's tags to an item the caller can edit.
func (s *Service) AssignTag(ctx context.Context, caller *access.Caller, itemID, tagID int64) error {
	var (
		item store.Item
		tag  store.Tag
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, _, err = s.requireItem(ctx, tx, caller, itemID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		tag, err = s.ownTag(ctx, tx, caller, tagID)
		if err != nil {
			return err
		}
		err = tx.InsertItemTag(ctx, itemID, tagID)
		if errors.Is(err, store.ErrDuplicate) {
			return conflict("Tag is already assigned to this item")
		}
		return err
	})
	if err != nil {
		return s.fail("assign tag", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.TagAssigned, map[string]any{
		"checklist_id": item.ChecklistID,
		"item_id":      itemID,
		"tag_id":       tagID,
		"tag_name":     tag.Name,
	})
	return nil
}

func (s *Service) UnassignTag(ctx context.Context, caller *access.Caller, itemID, tagID int64) error {
	var (
		item store.Item
		tag  store.Tag
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		item, _, err = s.requireItem(ctx, tx, caller, itemID, rbac.ActionEdit)
		if err != nil {
			return err
		}
		tag, err = s.ownTag(ctx, tx, caller, tagID)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteItemTag(ctx, itemID, tagID)
		if err != nil {
			return err
		}
		if !removed {
			return notFound("Tag is not assigned to this item")
		}
		return nil
	})
	if err != nil {
		return s.fail("unassign tag", err)
	}

	s.recorder.ForCaller(ctx, caller, audit.TagUnassigned, map[string]any{
		"checklist_id": item.ChecklistID,
		"item_id":      itemID,
		"tag_id":       tagID,
		"tag_name":     tag.Name,
	})
	return nil
}

// ownTag loads a tag the caller may use. Admins may use anyone's tags.
func (s *Service) ownTag(ctx context.Context, tx store.Tx, caller *access.Caller, tagID int64) (store.Tag, error) {
	tag, err := tx.GetTag(ctx, tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, notFound("Tag not found")
	}
	if err != nil {
		return store.Tag{}, err
	}
	if tag.UserID != caller.UserID && caller.SystemRole() != rbac.RoleAdmin {
		return store.Tag{}, forbidden("You can only use your own tags")
	}
	return tag, nil
}
