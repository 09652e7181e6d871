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

type InviteInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	// Role defaults to viewer.
	Role string `json:"role"`
}

type RoleInput struct {
	Role string `json:"role" validate:"required"`
}

func parseMemberRole(value string) (rbac.Role, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return rbac.RoleViewer, nil
	}
	role, ok := rbac.ParseCollaboratorRole(value)
	if !ok {
		return rbac.RoleNone, invalidInput("Role must be viewer or collaborator", map[string]any{
			"fields": map[string]string{"role": "role must be viewer or collaborator"},
		})
	}
	return role, nil
}

// ListCollaborators returns the owner first, then every collaborator in the
// order they joined.
func (s *Service) ListCollaborators(ctx context.Context, caller *access.Caller, checklistID int64) ([]MemberView, error) {
	var members []MemberView
	err := s.store.View(ctx, func(tx store.Tx) error {
		checklist, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionRead)
		if err != nil {
			return err
		}
		owner, err := tx.GetUser(ctx, checklist.OwnerID)
		if err != nil {
			return err
		}
		rows, err := tx.ListCollaborators(ctx, checklistID)
		if err != nil {
			return err
		}

		members = make([]MemberView, 0, len(rows)+1)
		members = append(members, MemberView{
			UserID:  owner.ID,
			Email:   owner.Email,
			Name:    owner.Name,
			Role:    rbac.RoleOwner,
			AddedAt: checklist.CreatedAt,
		})
		for _, row := range rows {
			members = append(members, collaboratorView(row))
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("list collaborators", err)
	}
	return members, nil
}

func (s *Service) InviteCollaborator(ctx context.Context, caller *access.Caller, checklistID int64, input InviteInput) (MemberView, error) {
	role, err := parseMemberRole(input.Role)
	if err != nil {
		return MemberView{}, s.fail("invite collaborator", err)
	}
	input.Role = string(role)
	input.Email = normalizeEmail(input.Email)
	if err := s.check(input); err != nil {
		return MemberView{}, s.fail("invite collaborator", err)
	}
	if err := s.allow(ctx, caller, ratelimit.InviteCollaborator); err != nil {
		return MemberView{}, err
	}

	var collaborator store.Collaborator
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		checklist, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage)
		if err != nil {
			return err
		}
		target, err := tx.GetUserByEmail(ctx, input.Email)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("No user with that email")
		}
		if err != nil {
			return err
		}
		switch {
		case target.ID == caller.UserID:
			return invalidInput("You cannot invite yourself", nil)
		case target.ID == checklist.OwnerID:
			return conflict("That user owns this checklist")
		}
		_, err = tx.GetCollaborator(ctx, checklistID, target.ID)
		if err == nil {
			return conflict("That user is already a collaborator")
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := s.quotas.Enforce(ctx, quota.CollaboratorsPerChecklist, func(ctx context.Context) (int, error) {
			return tx.CountCollaborators(ctx, checklistID)
		}); err != nil {
			return err
		}

		inviter := caller.UserID
		collaborator = store.Collaborator{
			ChecklistID: checklistID,
			UserID:      target.ID,
			Role:        string(role),
			InvitedBy:   &inviter,
			CreatedAt:   s.now(),
			Email:       target.Email,
			Name:        target.Name,
		}
		if err := tx.InsertCollaborator(ctx, &collaborator); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return conflict("That user is already a collaborator")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return MemberView{}, s.fail("invite collaborator", err)
	}
	caller.Forget(checklistID)

	s.recorder.ForCaller(ctx, caller, audit.CollaboratorInvited, map[string]any{
		"checklist_id":    checklistID,
		"collaborator_id": collaborator.ID,
		"target_user_id":  collaborator.UserID,
		"target_email":    collaborator.Email,
		"target_name":     collaborator.Name,
		"role":            collaborator.Role,
	})
	return collaboratorView(collaborator), nil
}

func (s *Service) ChangeCollaboratorRole(ctx context.Context, caller *access.Caller, checklistID, userID int64, input RoleInput) (MemberView, error) {
	if err := s.check(input); err != nil {
		return MemberView{}, s.fail("change collaborator role", err)
	}
	role, err := parseMemberRole(input.Role)
	if err != nil {
		return MemberView{}, s.fail("change collaborator role", err)
	}

	var (
		collaborator store.Collaborator
		oldRole      string
	)
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.requireChecklist(ctx, tx, caller, checklistID, rbac.ActionManage); err != nil {
			return err
		}
		var err error
		collaborator, err = tx.GetCollaborator(ctx, checklistID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Collaborator not found")
		}
		if err != nil {
			return err
		}
		if collaborator.Role == string(role) {
			return conflict("Collaborator already has that role")
		}
		oldRole = collaborator.Role
		collaborator.Role = string(role)
		return tx.UpdateCollaboratorRole(ctx, checklistID, userID, string(role))
	})
	if err != nil {
		return MemberView{}, s.fail("change collaborator role", err)
	}
	caller.Forget(checklistID)

	s.recorder.ForCaller(ctx, caller, audit.CollaboratorRoleUpdated, map[string]any{
		"checklist_id":   checklistID,
		"target_user_id": userID,
		"target_email":   collaborator.Email,
		"old_role":       oldRole,
		"new_role":       collaborator.Role,
	})
	return collaboratorView(collaborator), nil
}

// RemoveCollaborator revokes a membership. Members may always remove
// themselves; removing anyone else takes the owner.
func (s *Service) RemoveCollaborator(ctx context.Context, caller *access.Caller, checklistID, userID int64) error {
	self := userID == caller.UserID
	action := rbac.ActionManage
	if self {
		action = rbac.ActionRead
	}

	var collaborator store.Collaborator
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, _, err := s.requireChecklist(ctx, tx, caller, checklistID, action); err != nil {
			return err
		}
		var err error
		collaborator, err = tx.GetCollaborator(ctx, checklistID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Collaborator not found")
		}
		if err != nil {
			return err
		}
		return tx.DeleteCollaborator(ctx, checklistID, userID)
	})
	if err != nil {
		return s.fail("remove collaborator", err)
	}
	caller.Forget(checklistID)

	s.recorder.ForCaller(ctx, caller, audit.CollaboratorRemoved, map[string]any{
		"checklist_id":   checklistID,
		"target_user_id": userID,
		"target_email":   collaborator.Email,
		"role":           collaborator.Role,
		"self_removal":   self,
	})
	return nil
}
