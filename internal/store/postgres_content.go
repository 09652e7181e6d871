package store

import (
	"context"
	"fmt"

	"checklists/api/internal/ordering"
)

func (t *pgTx) LockParent(ctx context.Context, scope ordering.Scope) error {
	var query string
	switch scope.Kind {
	case ordering.KindSections:
		query = `SELECT id FROM checklists WHERE id = $1 FOR UPDATE`
	case ordering.KindItems:
		query = `SELECT id FROM sections WHERE id = $1 FOR UPDATE`
	default:
		return fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx, query, scope.ParentID).Scan(&id); err != nil {
		return err
	}
	return nil
}

func (t *pgTx) Siblings(ctx context.Context, scope ordering.Scope) ([]ordering.Sibling, error) {
	var query string
	switch scope.Kind {
	case ordering.KindSections:
		query = `SELECT id, order_pos FROM sections WHERE checklist_id = $1 ORDER BY order_pos, id`
	case ordering.KindItems:
		query = `SELECT id, order_pos FROM items WHERE section_id = $1 ORDER BY order_pos, id`
	default:
		return nil, fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	rows, err := t.tx.QueryContext(ctx, query, scope.ParentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ordering.Sibling
	for rows.Next() {
		var sibling ordering.Sibling
		if err := rows.Scan(&sibling.ID, &sibling.Pos); err != nil {
			return nil, err
		}
		out = append(out, sibling)
	}
	return out, rows.Err()
}

// SetPositions relies on the order_pos unique constraints being deferred to
// commit, so intermediate collisions while swapping are allowed.
func (t *pgTx) SetPositions(ctx context.Context, scope ordering.Scope, positions []ordering.Sibling) error {
	var query string
	switch scope.Kind {
	case ordering.KindSections:
		query = `UPDATE sections SET order_pos = $2 WHERE id = $1 AND checklist_id = $3`
	case ordering.KindItems:
		query = `UPDATE items SET order_pos = $2 WHERE id = $1 AND section_id = $3`
	default:
		return fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range positions {
		result, err := stmt.ExecContext(ctx, p.ID, p.Pos, scope.ParentID)
		if err != nil {
			return translate(err)
		}
		if err := expectAffected(result, "set position"); err != nil {
			return err
		}
	}
	return nil
}

const sectionColumns = `id, checklist_id, name, order_pos, created_at`

func scanSection(row rowScanner) (Section, error) {
	var section Section
	err := row.Scan(&section.ID, &section.ChecklistID, &section.Name, &section.OrderPos, &section.CreatedAt)
	return section, err
}

func (t *pgTx) GetSection(ctx context.Context, id int64) (Section, error) {
	section, err := scanSection(t.tx.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = $1`, id))
	if err != nil {
		return Section{}, fmt.Errorf("get section: %w", err)
	}
	return section, nil
}

func (t *pgTx) ListSections(ctx context.Context, checklistID int64) ([]Section, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE checklist_id = $1 ORDER BY order_pos, id`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return out, nil
}

func (t *pgTx) CountSections(ctx context.Context, checklistID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections WHERE checklist_id = $1`, checklistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sections: %w", err)
	}
	return count, nil
}

func (t *pgTx) InsertSection(ctx context.Context, section *Section) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sections (checklist_id, name, order_pos, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, section.ChecklistID, section.Name, section.OrderPos, section.CreatedAt).Scan(&section.ID)
	if err != nil {
		return fmt.Errorf("insert section: %w", translate(err))
	}
	return nil
}

func (t *pgTx) RenameSection(ctx context.Context, id int64, name string) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE sections SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("rename section: %w", err)
	}
	return expectAffected(result, "rename section")
}

func (t *pgTx) DeleteSection(ctx context.Context, id int64) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id IN (SELECT id FROM items WHERE section_id = $1)`, id); err != nil {
		return 0, fmt.Errorf("delete section item tags: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE section_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete section items: %w", err)
	}
	removed, err := affectedCount(result, "delete section items")
	if err != nil {
		return 0, err
	}
	result, err = t.tx.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete section: %w", err)
	}
	if err := expectAffected(result, "delete section"); err != nil {
		return 0, err
	}
	return removed, nil
}

const itemColumns = `id, checklist_id, section_id, text, completed, order_pos, created_at`

func scanItem(row rowScanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.ChecklistID, &item.SectionID, &item.Text, &item.Completed, &item.OrderPos, &item.CreatedAt)
	return item, err
}

func (t *pgTx) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

func (t *pgTx) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(t.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (t *pgTx) ListItems(ctx context.Context, checklistID int64) ([]Item, error) {
	return t.queryItems(ctx, `
		SELECT i.id, i.checklist_id, i.section_id, i.text, i.completed, i.order_pos, i.created_at
		FROM items i
		JOIN sections s ON s.id = i.section_id
		WHERE i.checklist_id = $1
		ORDER BY s.order_pos, s.id, i.order_pos, i.id
	`, checklistID)
}

func (t *pgTx) ListItemsByID(ctx context.Context, checklistID int64, ids []int64) ([]Item, error) {
	return t.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE checklist_id = $1 AND id = ANY($2) ORDER BY id`, checklistID, ids)
}

func (t *pgTx) CountItems(ctx context.Context, checklistID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE checklist_id = $1`, checklistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

func (t *pgTx) InsertItem(ctx context.Context, item *Item) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO items (checklist_id, section_id, text, completed, order_pos, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, item.ChecklistID, item.SectionID, item.Text, item.Completed, item.OrderPos, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert item: %w", translate(err))
	}
	return nil
}

func (t *pgTx) UpdateItemText(ctx context.Context, id int64, text string) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE items SET text = $2 WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return expectAffected(result, "update item")
}

func (t *pgTx) SetItemsCompleted(ctx context.Context, ids []int64, completed bool) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE items SET completed = $2 WHERE id = ANY($1)`, ids, completed); err != nil {
		return fmt.Errorf("set items completed: %w", err)
	}
	return nil
}

func (t *pgTx) ToggleItemCompleted(ctx context.Context, id int64) (bool, error) {
	var completed bool
	err := t.tx.QueryRowContext(ctx, `
		UPDATE items SET completed = NOT completed
		WHERE id = $1
		RETURNING completed
	`, id).Scan(&completed)
	if err != nil {
		return false, fmt.Errorf("toggle item: %w", err)
	}
	return completed, nil
}

func (t *pgTx) DeleteItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete item tags: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return expectAffected(result, "delete items")
}

const tagColumns = `id, user_id, name, color, emoji, created_at`

func scanTag(row rowScanner, extra ...any) (Tag, error) {
	var tag Tag
	dest := append([]any{&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.Emoji, &tag.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return tag, err
}

func (t *pgTx) GetTag(ctx context.Context, id int64) (Tag, error) {
	tag, err := scanTag(t.tx.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1`, id))
	if err != nil {
		return Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

func (t *pgTx) ListTags(ctx context.Context, userID int64) ([]Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE user_id = $1 ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

func (t *pgTx) CountTags(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return count, nil
}

func (t *pgTx) TagNameExists(ctx context.Context, userID int64, name string, exceptID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tags WHERE user_id = $1 AND name = $2 AND id <> $3)`,
		userID, name, exceptID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tag name: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertTag(ctx context.Context, tag *Tag) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO tags (user_id, name, color, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, tag.UserID, tag.Name, tag.Color, tag.Emoji, tag.CreatedAt).Scan(&tag.ID)
	if err != nil {
		return fmt.Errorf("insert tag: %w", translate(err))
	}
	return nil
}

func (t *pgTx) UpdateTag(ctx context.Context, tag Tag) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE tags SET name = $2, color = $3, emoji = $4 WHERE id = $1`,
		tag.ID, tag.Name, tag.Color, tag.Emoji)
	if err != nil {
		return fmt.Errorf("update tag: %w", translate(err))
	}
	return expectAffected(result, "update tag")
}

func (t *pgTx) DeleteTag(ctx context.Context, id int64) (int, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM item_tags WHERE tag_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete tag links: %w", err)
	}
	removed, err := affectedCount(result, "delete tag links")
	if err != nil {
		return 0, err
	}
	result, err = t.tx.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete tag: %w", err)
	}
	if err := expectAffected(result, "delete tag"); err != nil {
		return 0, err
	}
	return removed, nil
}

func (t *pgTx) InsertItemTag(ctx context.Context, itemID, tagID int64) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO item_tags (item_id, tag_id) VALUES ($1, $2)`, itemID, tagID); err != nil {
		return fmt.Errorf("assign tag: %w", translate(err))
	}
	return nil
}

func (t *pgTx) DeleteItemTag(ctx context.Context, itemID, tagID int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = $1 AND tag_id = $2`, itemID, tagID)
	if err != nil {
		return false, fmt.Errorf("unassign tag: %w", err)
	}
	affected, err := affectedCount(result, "unassign tag")
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (t *pgTx) ListChecklistItemTags(ctx context.Context, checklistID int64) (map[int64][]Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.name, t.color, t.emoji, t.created_at, it.item_id
		FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		JOIN items i ON i.id = it.item_id
		WHERE i.checklist_id = $1
		ORDER BY t.name, t.id
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list item tags: %w", err)
	}
	defer rows.Close()

	out := map[int64][]Tag{}
	for rows.Next() {
		var itemID int64
		tag, err := scanTag(rows, &itemID)
		if err != nil {
			return nil, fmt.Errorf("scan item tag: %w", err)
		}
		out[itemID] = append(out[itemID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item tags: %w", err)
	}
	return out, nil
}

var _ Tx = (*pgTx)(nil)
