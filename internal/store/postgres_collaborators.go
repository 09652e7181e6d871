package store

import (
	"context"
	"database/sql"
	"fmt"
)

const collaboratorColumns = `co.id, co.checklist_id, co.user_id, co.role, co.invited_by, co.created_at, u.email, u.name`

func scanCollaborator(row rowScanner) (Collaborator, error) {
	var (
		collaborator Collaborator
		invitedBy    sql.NullInt64
	)
	err := row.Scan(&collaborator.ID, &collaborator.ChecklistID, &collaborator.UserID, &collaborator.Role,
		&invitedBy, &collaborator.CreatedAt, &collaborator.Email, &collaborator.Name)
	if err != nil {
		return Collaborator{}, err
	}
	collaborator.InvitedBy = nullInt64Ptr(invitedBy)
	return collaborator, nil
}

func (t *pgTx) GetCollaborator(ctx context.Context, checklistID, userID int64) (Collaborator, error) {
	collaborator, err := scanCollaborator(t.tx.QueryRowContext(ctx, `
		SELECT `+collaboratorColumns+`
		FROM collaborators co
		JOIN users u ON u.id = co.user_id
		WHERE co.checklist_id = $1 AND co.user_id = $2
	`, checklistID, userID))
	if err != nil {
		return Collaborator{}, fmt.Errorf("get collaborator: %w", err)
	}
	return collaborator, nil
}

func (t *pgTx) ListCollaborators(ctx context.Context, checklistID int64) ([]Collaborator, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+collaboratorColumns+`
		FROM collaborators co
		JOIN users u ON u.id = co.user_id
		WHERE co.checklist_id = $1
		ORDER BY co.created_at, co.id
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	var out []Collaborator
	for rows.Next() {
		collaborator, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		out = append(out, collaborator)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return out, nil
}

func (t *pgTx) CountCollaborators(ctx context.Context, checklistID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collaborators WHERE checklist_id = $1`, checklistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count collaborators: %w", err)
	}
	return count, nil
}

func (t *pgTx) InsertCollaborator(ctx context.Context, collaborator *Collaborator) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO collaborators (checklist_id, user_id, role, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, collaborator.ChecklistID, collaborator.UserID, collaborator.Role, nullInt64(collaborator.InvitedBy),
		collaborator.CreatedAt).Scan(&collaborator.ID)
	if err != nil {
		return fmt.Errorf("insert collaborator: %w", translate(err))
	}
	return nil
}

func (t *pgTx) UpdateCollaboratorRole(ctx context.Context, checklistID, userID int64, role string) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE collaborators SET role = $3 WHERE checklist_id = $1 AND user_id = $2`,
		checklistID, userID, role)
	if err != nil {
		return fmt.Errorf("update collaborator role: %w", translate(err))
	}
	return expectAffected(result, "update collaborator role")
}

func (t *pgTx) DeleteCollaborator(ctx context.Context, checklistID, userID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM collaborators WHERE checklist_id = $1 AND user_id = $2`, checklistID, userID)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	return expectAffected(result, "delete collaborator")
}
