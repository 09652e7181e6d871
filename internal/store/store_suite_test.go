package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checklists/api/internal/ordering"
)

type engine interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	EnsureUser(ctx context.Context, email, name string, at time.Time) (User, bool, error)
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error)
}

var (
	_ engine = (*MemoryStore)(nil)
	_ engine = (*PostgresStore)(nil)
)

func TestMemoryStoreBehaviour(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestPostgresStoreBehaviour(t *testing.T) {
	runStoreSuite(t, openIntegrationStore(t))
}

func runStoreSuite(t *testing.T, s engine) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	owner, created, err := s.EnsureUser(ctx, "owner-"+suffix+"@example.com", "Owner", now)
	require.NoError(t, err)
	require.True(t, created)
	again, created, err := s.EnsureUser(ctx, owner.Email, "Renamed", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, owner.ID, again.ID)
	assert.Equal(t, "Owner", again.Name)
	assert.Equal(t, UserRoleUser, again.Role)

	member, _, err := s.EnsureUser(ctx, "member-"+suffix+"@example.com", "Member", now)
	require.NoError(t, err)

	var checklist Checklist
	var first, second Section
	t.Run("insert and read back", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx Tx) error {
			checklist = Checklist{OwnerID: owner.ID, Title: "Groceries", CreatedAt: now, UpdatedAt: now}
			if err := tx.InsertChecklist(ctx, &checklist); err != nil {
				return err
			}
			first = Section{ChecklistID: checklist.ID, Name: "Produce", OrderPos: 1, CreatedAt: now}
			if err := tx.InsertSection(ctx, &first); err != nil {
				return err
			}
			second = Section{ChecklistID: checklist.ID, Name: "Dairy", OrderPos: 2, CreatedAt: now}
			if err := tx.InsertSection(ctx, &second); err != nil {
				return err
			}
			for i, text := range []string{"apples", "pears", "plums"} {
				item := Item{ChecklistID: checklist.ID, SectionID: first.ID, Text: text, OrderPos: i + 1, CreatedAt: now}
				if err := tx.InsertItem(ctx, &item); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		err = s.View(ctx, func(tx Tx) error {
			stats, err := tx.ChecklistStats(ctx, checklist.ID)
			require.NoError(t, err)
			assert.Equal(t, Stats{SectionCount: 2, ItemCount: 3}, stats)

			items, err := tx.ListItems(ctx, checklist.ID)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "apples", items[0].Text)
			assert.Equal(t, "plums", items[2].Text)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("view rejects writes or the database does", func(t *testing.T) {
		err := s.View(ctx, func(tx Tx) error {
			return tx.RenameSection(ctx, first.ID, "nope")
		})
		require.Error(t, err)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx Tx) error {
			if err := tx.RenameSection(ctx, first.ID, "Changed"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, s.View(ctx, func(tx Tx) error {
			section, err := tx.GetSection(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, "Produce", section.Name)
			return nil
		}))
	})

	t.Run("missing rows are sql.ErrNoRows", func(t *testing.T) {
		require.NoError(t, s.View(ctx, func(tx Tx) error {
			_, err := tx.GetChecklist(ctx, -1)
			assert.ErrorIs(t, err, sql.ErrNoRows)
			_, err = tx.GetCollaborator(ctx, checklist.ID, member.ID)
			assert.ErrorIs(t, err, sql.ErrNoRows)
			return nil
		}))
	})

	t.Run("toggle flips the stored flag", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx Tx) error {
			items, err := tx.ListItems(ctx, checklist.ID)
			require.NoError(t, err)
			require.NotEmpty(t, items)
			target := items[0]

			completed, err := tx.ToggleItemCompleted(ctx, target.ID)
			require.NoError(t, err)
			assert.Equal(t, !target.Completed, completed)
			completed, err = tx.ToggleItemCompleted(ctx, target.ID)
			require.NoError(t, err)
			assert.Equal(t, target.Completed, completed)

			_, err = tx.ToggleItemCompleted(ctx, -1)
			assert.ErrorIs(t, err, sql.ErrNoRows)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("reorder swaps positions inside one transaction", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx Tx) error {
			return ordering.ApplyReorder(ctx, tx, ordering.Sections(checklist.ID), []int64{second.ID, first.ID})
		})
		require.NoError(t, err)

		require.NoError(t, s.View(ctx, func(tx Tx) error {
			sections, err := tx.ListSections(ctx, checklist.ID)
			require.NoError(t, err)
			require.Len(t, sections, 2)
			assert.Equal(t, second.ID, sections[0].ID)
			assert.Equal(t, 1, sections[0].OrderPos)
			assert.Equal(t, 2, sections[1].OrderPos)
			return nil
		}))
	})

	t.Run("collaborator rules", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertCollaborator(ctx, &Collaborator{ChecklistID: checklist.ID, UserID: owner.ID, Role: "viewer", CreatedAt: now})
		})
		require.ErrorIs(t, err, ErrConstraint)

		err = s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertCollaborator(ctx, &Collaborator{ChecklistID: checklist.ID, UserID: member.ID, Role: "viewer", InvitedBy: &owner.ID, CreatedAt: now})
		})
		require.NoError(t, err)

		err = s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertCollaborator(ctx, &Collaborator{ChecklistID: checklist.ID, UserID: member.ID, Role: "collaborator", CreatedAt: now})
		})
		require.ErrorIs(t, err, ErrDuplicate)

		require.NoError(t, s.View(ctx, func(tx Tx) error {
			collaborator, err := tx.GetCollaborator(ctx, checklist.ID, member.ID)
			require.NoError(t, err)
			assert.Equal(t, "viewer", collaborator.Role)
			assert.Equal(t, member.Email, collaborator.Email)

			shared, err := tx.ListSharedChecklists(ctx, member.ID)
			require.NoError(t, err)
			require.Len(t, shared, 1)
			assert.Equal(t, "Owner", shared[0].OwnerName)
			return nil
		}))
	})

	t.Run("tag names are unique per user", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx Tx) error {
			tag := Tag{UserID: owner.ID, Name: "urgent", Color: "#ff0000", CreatedAt: now}
			if err := tx.InsertTag(ctx, &tag); err != nil {
				return err
			}
			items, err := tx.ListItems(ctx, checklist.ID)
			if err != nil {
				return err
			}
			return tx.InsertItemTag(ctx, items[0].ID, tag.ID)
		})
		require.NoError(t, err)

		err = s.WithTx(ctx, func(tx Tx) error {
			return tx.InsertTag(ctx, &Tag{UserID: owner.ID, Name: "urgent", CreatedAt: now})
		})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("hard delete reports cascade counts", func(t *testing.T) {
		var removed ChecklistCascade
		err := s.WithTx(ctx, func(tx Tx) error {
			var err error
			removed, err = tx.DeleteChecklistCascade(ctx, checklist.ID)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, ChecklistCascade{Sections: 2, Items: 3, ItemTags: 1, Collaborators: 1}, removed)
	})

	t.Run("audit entries page newest first", func(t *testing.T) {
		event := "STORE_SUITE_" + suffix
		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendAudit(ctx, AuditEntry{
				EventType: event,
				UserID:    &owner.ID,
				Details:   map[string]any{"n": i},
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}))
		}
		entries, total, err := s.ListAudit(ctx, AuditFilter{EventType: event, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, entries, 2)
		assert.EqualValues(t, 2, entries[0].Details["n"])
	})
}
