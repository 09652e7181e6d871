// Package access resolves what a signed-in user may do with a checklist.
//
// A Caller is built once per request and carried explicitly through every
// operation. Resolved roles are memoized on the Caller, so nothing leaks from
// one request into the next.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

var (
	// ErrNoStanding means the caller has no role at all on the checklist.
	ErrNoStanding = errors.New("no standing on checklist")
	// ErrInsufficientRole means the caller has a role, but a lower one than
	// the action needs.
	ErrInsufficientRole = errors.New("insufficient role")
)

// RoleSource is the slice of a store transaction the resolver reads.
type RoleSource interface {
	GetChecklist(ctx context.Context, id int64) (store.Checklist, error)
	GetCollaborator(ctx context.Context, checklistID, userID int64) (store.Collaborator, error)
}

// Origin describes where a request came from. It ends up on audit records.
type Origin struct {
	IPAddress string
	UserAgent string
	Method    string
	URI       string
}

type memoKey struct {
	checklistID int64
	userID      int64
}

type Caller struct {
	UserID int64
	Email  string
	Name   string
	Admin  bool
	Origin Origin

	roles map[memoKey]rbac.Role
}

func NewCaller(user store.User, origin Origin) *Caller {
	return &Caller{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Admin:  user.IsAdmin(),
		Origin: origin,
		roles:  map[memoKey]rbac.Role{},
	}
}

// Resolve returns the caller's role on a checklist. Admins short-circuit
// before any lookup. A missing checklist resolves to RoleNone.
func (c *Caller) Resolve(ctx context.Context, src RoleSource, checklistID int64) (rbac.Role, error) {
	if role := c.SystemRole(); role == rbac.RoleAdmin {
		return role, nil
	}
	key := memoKey{checklistID: checklistID, userID: c.UserID}
	if role, ok := c.roles[key]; ok {
		return role, nil
	}

	role, err := c.lookup(ctx, src, checklistID)
	if err != nil {
		return rbac.RoleNone, err
	}
	if c.roles == nil {
		c.roles = map[memoKey]rbac.Role{}
	}
	c.roles[key] = role
	return role, nil
}

func (c *Caller) lookup(ctx context.Context, src RoleSource, checklistID int64) (rbac.Role, error) {
	checklist, err := src.GetChecklist(ctx, checklistID)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.RoleNone, nil
	}
	if err != nil {
		return rbac.RoleNone, fmt.Errorf("resolve role: %w", err)
	}
	if checklist.OwnerID == c.UserID {
		return rbac.RoleOwner, nil
	}

	collaborator, err := src.GetCollaborator(ctx, checklistID, c.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.RoleNone, nil
	}
	if err != nil {
		return rbac.RoleNone, fmt.Errorf("resolve role: %w", err)
	}
	return rbac.Normalize(collaborator.Role), nil
}

// Require resolves the caller's role and checks it against the minimum for
// action. It returns the resolved role on success. The role is read when
// Require runs; writers call it after locking the checklist row so a
// membership change committed meanwhile is seen.
func (c *Caller) Require(ctx context.Context, src RoleSource, checklistID int64, action rbac.Action) (rbac.Role, error) {
	role, err := c.Resolve(ctx, src, checklistID)
	if err != nil {
		return rbac.RoleNone, err
	}
	if role == rbac.RoleNone {
		return role, ErrNoStanding
	}
	if !role.AtLeast(rbac.Minimum(action)) {
		return role, ErrInsufficientRole
	}
	return role, nil
}

// SystemRole is the caller's role independent of any checklist: RoleAdmin
// for administrators, RoleNone for everyone else.
func (c *Caller) SystemRole() rbac.Role {
	if c.Admin {
		return rbac.RoleAdmin
	}
	return rbac.RoleNone
}

// Forget drops the memoized role for checklistID. Call it after the request
// itself changed who collaborates on that checklist.
func (c *Caller) Forget(checklistID int64) {
	delete(c.roles, memoKey{checklistID: checklistID, userID: c.UserID})
}
