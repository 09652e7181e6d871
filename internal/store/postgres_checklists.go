package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// pgTx implements Tx on top of one database/sql transaction.
type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, name, role, active, created_at, last_login`

func scanUser(row rowScanner) (User, error) {
	var (
		user      User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.Active, &user.CreatedAt, &lastLogin); err != nil {
		return User{}, err
	}
	user.LastLogin = nullTimePtr(lastLogin)
	return user, nil
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (t *pgTx) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (t *pgTx) UpdateUser(ctx context.Context, user User) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE users SET name = $2, role = $3, active = $4 WHERE id = $1`,
		user.ID, user.Name, user.Role, user.Active)
	if err != nil {
		return fmt.Errorf("update user: %w", translate(err))
	}
	return expectAffected(result, "update user")
}

func (t *pgTx) DeleteUserCascade(ctx context.Context, id int64) (UserCascade, error) {
	var out UserCascade

	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM checklists WHERE owner_id = $1 ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return UserCascade{}, fmt.Errorf("list owned checklists: %w", err)
	}
	var owned []int64
	for rows.Next() {
		var checklistID int64
		if err := rows.Scan(&checklistID); err != nil {
			rows.Close()
			return UserCascade{}, fmt.Errorf("scan owned checklist: %w", err)
		}
		owned = append(owned, checklistID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return UserCascade{}, fmt.Errorf("iterate owned checklists: %w", err)
	}
	rows.Close()

	for _, checklistID := range owned {
		removed, err := t.DeleteChecklistCascade(ctx, checklistID)
		if err != nil {
			return UserCascade{}, err
		}
		out.Checklists++
		out.Owned.add(removed)
	}

	result, err := t.tx.ExecContext(ctx, `DELETE FROM collaborators WHERE user_id = $1`, id)
	if err != nil {
		return UserCascade{}, fmt.Errorf("delete collaborations: %w", err)
	}
	if out.Collaborations, err = affectedCount(result, "delete collaborations"); err != nil {
		return UserCascade{}, err
	}

	result, err = t.tx.ExecContext(ctx, `DELETE FROM item_tags WHERE tag_id IN (SELECT id FROM tags WHERE user_id = $1)`, id)
	if err != nil {
		return UserCascade{}, fmt.Errorf("delete tag links: %w", err)
	}
	if out.TagLinks, err = affectedCount(result, "delete tag links"); err != nil {
		return UserCascade{}, err
	}

	result, err = t.tx.ExecContext(ctx, `DELETE FROM tags WHERE user_id = $1`, id)
	if err != nil {
		return UserCascade{}, fmt.Errorf("delete tags: %w", err)
	}
	if out.Tags, err = affectedCount(result, "delete tags"); err != nil {
		return UserCascade{}, err
	}

	if _, err := t.tx.ExecContext(ctx, `UPDATE collaborators SET invited_by = NULL WHERE invited_by = $1`, id); err != nil {
		return UserCascade{}, fmt.Errorf("clear inviter: %w", err)
	}

	result, err = t.tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return UserCascade{}, fmt.Errorf("delete user: %w", err)
	}
	if err := expectAffected(result, "delete user"); err != nil {
		return UserCascade{}, err
	}
	return out, nil
}

const checklistColumns = `id, owner_id, title, description, is_public, share_token, created_at, updated_at, deleted_at`

func scanChecklist(row rowScanner, extra ...any) (Checklist, error) {
	var (
		checklist  Checklist
		shareToken sql.NullString
		deletedAt  sql.NullTime
	)
	dest := []any{
		&checklist.ID, &checklist.OwnerID, &checklist.Title, &checklist.Description, &checklist.IsPublic,
		&shareToken, &checklist.CreatedAt, &checklist.UpdatedAt, &deletedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Checklist{}, err
	}
	checklist.ShareToken = nullStringPtr(shareToken)
	checklist.DeletedAt = nullTimePtr(deletedAt)
	return checklist, nil
}

func (t *pgTx) GetChecklist(ctx context.Context, id int64) (Checklist, error) {
	checklist, err := scanChecklist(t.tx.QueryRowContext(ctx, `SELECT `+checklistColumns+` FROM checklists WHERE id = $1`, id))
	if err != nil {
		return Checklist{}, fmt.Errorf("get checklist: %w", err)
	}
	return checklist, nil
}

func (t *pgTx) LockChecklist(ctx context.Context, id int64) (Checklist, error) {
	checklist, err := scanChecklist(t.tx.QueryRowContext(ctx, `SELECT `+checklistColumns+` FROM checklists WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Checklist{}, fmt.Errorf("lock checklist: %w", err)
	}
	return checklist, nil
}

func (t *pgTx) GetChecklistByShareToken(ctx context.Context, token string) (Checklist, error) {
	checklist, err := scanChecklist(t.tx.QueryRowContext(ctx, `SELECT `+checklistColumns+` FROM checklists WHERE share_token = $1`, token))
	if err != nil {
		return Checklist{}, fmt.Errorf("get checklist by share token: %w", err)
	}
	return checklist, nil
}

func (t *pgTx) ShareTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM checklists WHERE share_token = $1)`, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("check share token: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CountActiveChecklists(ctx context.Context, ownerID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklists WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count checklists: %w", err)
	}
	return count, nil
}

func (t *pgTx) InsertChecklist(ctx context.Context, checklist *Checklist) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO checklists (owner_id, title, description, is_public, share_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, checklist.OwnerID, checklist.Title, checklist.Description, checklist.IsPublic, nullString(checklist.ShareToken),
		checklist.CreatedAt, checklist.UpdatedAt).Scan(&checklist.ID)
	if err != nil {
		return fmt.Errorf("insert checklist: %w", translate(err))
	}
	return nil
}

func (t *pgTx) UpdateChecklist(ctx context.Context, checklist Checklist) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE checklists
		SET title = $2, description = $3, is_public = $4, share_token = $5, updated_at = $6, deleted_at = $7
		WHERE id = $1
	`, checklist.ID, checklist.Title, checklist.Description, checklist.IsPublic, nullString(checklist.ShareToken),
		checklist.UpdatedAt, nullTime(checklist.DeletedAt))
	if err != nil {
		return fmt.Errorf("update checklist: %w", translate(err))
	}
	return expectAffected(result, "update checklist")
}

func (t *pgTx) TouchChecklist(ctx context.Context, id int64, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE checklists SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch checklist: %w", err)
	}
	return expectAffected(result, "touch checklist")
}

func (t *pgTx) DeleteChecklistCascade(ctx context.Context, id int64) (ChecklistCascade, error) {
	var out ChecklistCascade
	steps := []struct {
		what  string
		query string
		count *int
	}{
		{"delete item tags", `DELETE FROM item_tags WHERE item_id IN (SELECT id FROM items WHERE checklist_id = $1)`, &out.ItemTags},
		{"delete items", `DELETE FROM items WHERE checklist_id = $1`, &out.Items},
		{"delete sections", `DELETE FROM sections WHERE checklist_id = $1`, &out.Sections},
		{"delete collaborators", `DELETE FROM collaborators WHERE checklist_id = $1`, &out.Collaborators},
	}
	for _, step := range steps {
		result, err := t.tx.ExecContext(ctx, step.query, id)
		if err != nil {
			return ChecklistCascade{}, fmt.Errorf("%s: %w", step.what, err)
		}
		if *step.count, err = affectedCount(result, step.what); err != nil {
			return ChecklistCascade{}, err
		}
	}

	result, err := t.tx.ExecContext(ctx, `DELETE FROM checklists WHERE id = $1`, id)
	if err != nil {
		return ChecklistCascade{}, fmt.Errorf("delete checklist: %w", err)
	}
	if err := expectAffected(result, "delete checklist"); err != nil {
		return ChecklistCascade{}, err
	}
	return out, nil
}

const statsColumns = `
	(SELECT COUNT(*) FROM sections s WHERE s.checklist_id = c.id),
	(SELECT COUNT(*) FROM items i WHERE i.checklist_id = c.id),
	(SELECT COUNT(*) FROM items i WHERE i.checklist_id = c.id AND i.completed)`

func (t *pgTx) ChecklistStats(ctx context.Context, id int64) (Stats, error) {
	var stats Stats
	err := t.tx.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM checklists c WHERE c.id = $1`, id).
		Scan(&stats.SectionCount, &stats.ItemCount, &stats.CompletedCount)
	if err != nil {
		return Stats{}, fmt.Errorf("checklist stats: %w", err)
	}
	return stats, nil
}

func (t *pgTx) ListChecklists(ctx context.Context, query ChecklistQuery) ([]ChecklistSummary, int, error) {
	const where = `
		WHERE c.owner_id = $1 AND c.deleted_at IS NULL
		  AND ($2 = '' OR c.title ILIKE $3 OR c.description ILIKE $3)`
	pattern := likePattern(query.Search)

	var total int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklists c `+where,
		query.OwnerID, query.Search, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count checklists: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.id, c.owner_id, c.title, c.description, c.is_public, c.share_token,
		       c.created_at, c.updated_at, c.deleted_at,`+statsColumns+`
		FROM checklists c `+where+`
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT $4 OFFSET $5
	`, query.OwnerID, query.Search, pattern, query.Limit, query.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list checklists: %w", err)
	}
	defer rows.Close()

	var out []ChecklistSummary
	for rows.Next() {
		var summary ChecklistSummary
		checklist, err := scanChecklist(rows, &summary.SectionCount, &summary.ItemCount, &summary.CompletedCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan checklist: %w", err)
		}
		summary.Checklist = checklist
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate checklists: %w", err)
	}
	return out, total, nil
}

func (t *pgTx) ListSharedChecklists(ctx context.Context, userID int64) ([]SharedChecklist, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.id, c.owner_id, c.title, c.description, c.is_public, c.share_token,
		       c.created_at, c.updated_at, c.deleted_at,`+statsColumns+`,
		       co.role, u.name, u.email, co.created_at
		FROM collaborators co
		JOIN checklists c ON c.id = co.checklist_id
		JOIN users u ON u.id = c.owner_id
		WHERE co.user_id = $1 AND c.deleted_at IS NULL
		ORDER BY co.created_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared checklists: %w", err)
	}
	defer rows.Close()

	var out []SharedChecklist
	for rows.Next() {
		var shared SharedChecklist
		checklist, err := scanChecklist(rows,
			&shared.SectionCount, &shared.ItemCount, &shared.CompletedCount,
			&shared.Role, &shared.OwnerName, &shared.OwnerEmail, &shared.SharedAt)
		if err != nil {
			return nil, fmt.Errorf("scan shared checklist: %w", err)
		}
		shared.Checklist = checklist
		out = append(out, shared)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared checklists: %w", err)
	}
	return out, nil
}

func (t *pgTx) ListTrashedChecklists(ctx context.Context, ownerID int64, deletedAfter time.Time) ([]Checklist, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+checklistColumns+`
		FROM checklists
		WHERE owner_id = $1 AND deleted_at IS NOT NULL AND deleted_at > $2
		ORDER BY deleted_at DESC, id DESC
	`, ownerID, deletedAfter)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	defer rows.Close()

	var out []Checklist
	for rows.Next() {
		checklist, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trashed checklist: %w", err)
		}
		out = append(out, checklist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trash: %w", err)
	}
	return out, nil
}
