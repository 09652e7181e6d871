package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
)

type fakeSource struct {
	checklists    map[int64]store.Checklist
	collaborators map[[2]int64]store.Collaborator
	lookups       int
	failWith      error
}

func (f *fakeSource) GetChecklist(_ context.Context, id int64) (store.Checklist, error) {
	f.lookups++
	if f.failWith != nil {
		return store.Checklist{}, f.failWith
	}
	checklist, ok := f.checklists[id]
	if !ok {
		return store.Checklist{}, fmt.Errorf("get checklist: %w", sql.ErrNoRows)
	}
	return checklist, nil
}

func (f *fakeSource) GetCollaborator(_ context.Context, checklistID, userID int64) (store.Collaborator, error) {
	f.lookups++
	collaborator, ok := f.collaborators[[2]int64{checklistID, userID}]
	if !ok {
		return store.Collaborator{}, sql.ErrNoRows
	}
	return collaborator, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		checklists: map[int64]store.Checklist{
			10: {ID: 10, OwnerID: 1},
		},
		collaborators: map[[2]int64]store.Collaborator{
			{10, 2}: {ChecklistID: 10, UserID: 2, Role: "viewer"},
			{10, 3}: {ChecklistID: 10, UserID: 3, Role: "collaborator"},
		},
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name        string
		user        store.User
		checklistID int64
		want        rbac.Role
	}{
		{name: "owner", user: store.User{ID: 1, Role: store.UserRoleUser}, checklistID: 10, want: rbac.RoleOwner},
		{name: "viewer", user: store.User{ID: 2, Role: store.UserRoleUser}, checklistID: 10, want: rbac.RoleViewer},
		{name: "collaborator", user: store.User{ID: 3, Role: store.UserRoleUser}, checklistID: 10, want: rbac.RoleCollaborator},
		{name: "stranger", user: store.User{ID: 4, Role: store.UserRoleUser}, checklistID: 10, want: rbac.RoleNone},
		{name: "missing checklist", user: store.User{ID: 1, Role: store.UserRoleUser}, checklistID: 99, want: rbac.RoleNone},
		{name: "admin", user: store.User{ID: 5, Role: store.UserRoleAdmin}, checklistID: 10, want: rbac.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := NewCaller(tc.user, Origin{})
			role, err := caller.Resolve(context.Background(), newFakeSource(), tc.checklistID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, role)
		})
	}
}

func TestAdminShortCircuitsBeforeLookup(t *testing.T) {
	src := newFakeSource()
	caller := NewCaller(store.User{ID: 5, Role: store.UserRoleAdmin}, Origin{})

	_, err := caller.Require(context.Background(), src, 12345, rbac.ActionManage)
	require.NoError(t, err)
	assert.Zero(t, src.lookups)
}

func TestResolveIsMemoizedPerCaller(t *testing.T) {
	src := newFakeSource()
	caller := NewCaller(store.User{ID: 2}, Origin{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := caller.Resolve(ctx, src, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.lookups)

	src.collaborators[[2]int64{10, 2}] = store.Collaborator{Role: "collaborator"}
	role, err := caller.Resolve(ctx, src, 10)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleViewer, role, "memo survives until forgotten")

	caller.Forget(10)
	role, err = caller.Resolve(ctx, src, 10)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleCollaborator, role)

	other := NewCaller(store.User{ID: 2}, Origin{})
	before := src.lookups
	_, err = other.Resolve(ctx, src, 10)
	require.NoError(t, err)
	assert.Greater(t, src.lookups, before, "a new request starts with an empty memo")
}

func TestRequire(t *testing.T) {
	cases := []struct {
		name    string
		userID  int64
		action  rbac.Action
		wantErr error
	}{
		{name: "viewer reads", userID: 2, action: rbac.ActionRead},
		{name: "viewer cannot edit", userID: 2, action: rbac.ActionEdit, wantErr: ErrInsufficientRole},
		{name: "collaborator edits", userID: 3, action: rbac.ActionEdit},
		{name: "collaborator cannot manage", userID: 3, action: rbac.ActionManage, wantErr: ErrInsufficientRole},
		{name: "owner manages", userID: 1, action: rbac.ActionManage},
		{name: "owner cannot administer", userID: 1, action: rbac.ActionAdminister, wantErr: ErrInsufficientRole},
		{name: "stranger has no standing", userID: 4, action: rbac.ActionRead, wantErr: ErrNoStanding},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := NewCaller(store.User{ID: tc.userID}, Origin{})
			_, err := caller.Require(context.Background(), newFakeSource(), 10, tc.action)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestResolvePropagatesStorageErrors(t *testing.T) {
	src := newFakeSource()
	src.failWith = errors.New("connection reset")
	caller := NewCaller(store.User{ID: 1}, Origin{})

	_, err := caller.Require(context.Background(), src, 10, rbac.ActionRead)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoStanding)

	src.failWith = nil
	role, err := caller.Resolve(context.Background(), src, 10)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOwner, role, "errors are not memoized")
}

func TestSystemRole(t *testing.T) {
	assert.Equal(t, rbac.RoleAdmin, NewCaller(store.User{ID: 5, Role: store.UserRoleAdmin}, Origin{}).SystemRole())
	assert.Equal(t, rbac.RoleNone, NewCaller(store.User{ID: 1, Role: store.UserRoleUser}, Origin{}).SystemRole())
}
