package app

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checklists/api/internal/audit"
	"checklists/api/internal/store"
)

func TestScenarioCreateChecklistSectionAndItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user("owner@example.com")

	checklist := h.checklist(owner, "Groceries")
	section := h.section(owner, checklist.ID, "Produce")
	item := h.item(owner, section.ID, "Apples")
	require.Equal(t, 1, item.OrderPos)

	detail, err := h.svc.GetChecklist(ctx, owner, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.ItemCount)
	assert.Equal(t, 0, detail.CompletedCount)
	assert.Equal(t, 0, detail.Progress)
	require.Len(t, detail.Sections, 1)
	require.Len(t, detail.Sections[0].Items, 1)
	assert.Equal(t, "Apples", detail.Sections[0].Items[0].Text)

	assert.Len(t, h.audit(audit.ChecklistCreated), 1)
	assert.Len(t, h.audit(audit.SectionCreated), 1)
	assert.Len(t, h.audit(audit.ItemCreated), 1)
}

func TestScenarioTrashAndRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user("owner@example.com")
	h.user("editor@example.com")

	checklist := h.checklist(owner, "Packing")
	collaborator := h.invite(owner, checklist.ID, "editor@example.com", "collaborator")

	require.NoError(t, h.svc.DeleteChecklist(ctx, owner, checklist.ID))

	active, err := h.svc.ListChecklists(ctx, owner, "", 1)
	require.NoError(t, err)
	assert.Empty(t, active.Checklists)

	trash, err := h.svc.ListTrash(ctx, owner)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, checklist.ID, trash[0].ID)
	assert.Equal(t, 30, trash[0].DaysRemaining)

	_, err = h.svc.RestoreChecklist(ctx, h.caller(collaborator.UserID), checklist.ID)
	requireKind(t, err, KindForbidden)

	h.advance(29 * 24 * time.Hour)
	restored, err := h.svc.RestoreChecklist(ctx, h.caller(owner.UserID), checklist.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)

	active, err = h.svc.ListChecklists(ctx, owner, "", 1)
	require.NoError(t, err)
	require.Len(t, active.Checklists, 1)
	assert.Len(t, h.audit(audit.ChecklistRestored), 1)
}

func TestScenarioViewerCannotInviteButCanLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user("owner@example.com")
	h.user("x@example.com")
	h.user("y@example.com")

	checklist := h.checklist(owner, "Trip")
	member := h.invite(owner, checklist.ID, "x@example.com", "viewer")
	x := h.caller(member.UserID)

	_, err := h.svc.InviteCollaborator(ctx, x, checklist.ID, InviteInput{Email: "y@example.com"})
	requireKind(t, err, KindForbidden)

	require.NoError(t, h.svc.RemoveCollaborator(ctx, x, checklist.ID, x.UserID))

	_, err = h.svc.GetChecklist(ctx, x, checklist.ID)
	requireKind(t, err, KindNotFound)

	removed := h.audit(audit.CollaboratorRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, true, removed[0].Details["self_removal"])
}

func TestScenarioAdminHardDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user("owner@example.com")
	h.user("a@example.com")
	h.user("b@example.com")
	admin := h.admin("root@example.com")

	checklist := h.checklist(owner, "Move house")
	var sectionIDs []int64
	for i := 1; i <= 3; i++ {
		sectionIDs = append(sectionIDs, h.section(owner, checklist.ID, fmt.Sprintf("Room %d", i)).ID)
	}
	for i := 0; i < 10; i++ {
		h.item(owner, sectionIDs[i%3], fmt.Sprintf("Box %d", i))
	}
	h.invite(owner, checklist.ID, "a@example.com", "viewer")
	h.invite(owner, checklist.ID, "b@example.com", "collaborator")

	result, err := h.svc.HardDeleteChecklist(ctx, admin, checklist.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sections)
	assert.Equal(t, 10, result.Items)
	assert.Equal(t, 2, result.Collaborators)

	require.NoError(t, h.store.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetChecklist(ctx, checklist.ID)
		require.ErrorIs(t, err, sql.ErrNoRows)
		sections, err := tx.ListSections(ctx, checklist.ID)
		require.NoError(t, err)
		assert.Empty(t, sections)
		items, err := tx.ListItems(ctx, checklist.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
		collaborators, err := tx.ListCollaborators(ctx, checklist.ID)
		require.NoError(t, err)
		assert.Empty(t, collaborators)
		return nil
	}))

	entries := h.audit(audit.ChecklistHardDeleted)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Details["sections"])
	assert.Equal(t, 10, entries[0].Details["items"])
	assert.Equal(t, 2, entries[0].Details["collaborators"])
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, admin.UserID, *entries[0].UserID)
}

func TestHardDeleteIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	owner := h.user("owner@example.com")
	checklist := h.checklist(owner, "Mine")

	_, err := h.svc.HardDeleteChecklist(context.Background(), owner, checklist.ID)
	requireKind(t, err, KindForbidden)
}
