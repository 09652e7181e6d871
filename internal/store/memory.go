package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"checklists/api/internal/ordering"
)

// MemoryStore keeps every table in process memory. Writers are serialized and
// work on a copy of the state that replaces the original only when the
// transaction function succeeds, so a failed unit of work leaves no trace.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState

	auditMu   sync.Mutex
	audit     []AuditEntry
	nextAudit int64
}

type itemTagKey struct {
	itemID int64
	tagID  int64
}

type memState struct {
	seq           map[string]int64
	users         map[int64]User
	checklists    map[int64]Checklist
	sections      map[int64]Section
	items         map[int64]Item
	tags          map[int64]Tag
	itemTags      map[itemTagKey]time.Time
	collaborators map[int64]Collaborator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		seq:           map[string]int64{},
		users:         map[int64]User{},
		checklists:    map[int64]Checklist{},
		sections:      map[int64]Section{},
		items:         map[int64]Item{},
		tags:          map[int64]Tag{},
		itemTags:      map[itemTagKey]time.Time{},
		collaborators: map[int64]Collaborator{},
	}}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		seq:           cloneMap(s.seq),
		users:         cloneMap(s.users),
		checklists:    cloneMap(s.checklists),
		sections:      cloneMap(s.sections),
		items:         cloneMap(s.items),
		tags:          cloneMap(s.tags),
		itemTags:      cloneMap(s.itemTags),
		collaborators: cloneMap(s.collaborators),
	}
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memTx{st: working, writable: true}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	m.state = working
	return nil
}

func (m *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{st: m.state})
}

func (m *MemoryStore) EnsureUser(ctx context.Context, email, name string, at time.Time) (User, bool, error) {
	var (
		user    User
		created bool
	)
	err := m.WithTx(ctx, func(tx Tx) error {
		st := tx.(*memTx).st
		for id, existing := range st.users {
			if existing.Email != email {
				continue
			}
			login := at
			existing.LastLogin = &login
			if existing.Name == "" {
				existing.Name = name
			}
			st.users[id] = existing
			user = existing
			return nil
		}
		login := at
		user = User{
			ID:        st.next("users"),
			Email:     email,
			Name:      name,
			Role:      UserRoleUser,
			Active:    true,
			CreatedAt: at,
			LastLogin: &login,
		}
		st.users[user.ID] = user
		created = true
		return nil
	})
	return user, created, err
}

func (m *MemoryStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.auditMu.Lock()
	defer m.auditMu.Unlock()

	m.nextAudit++
	entry.ID = m.nextAudit
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Details = cloneMap(entry.Details)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemoryStore) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.auditMu.Lock()
	defer m.auditMu.Unlock()

	var matched []AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		entry := m.audit[i]
		if filter.EventType != "" && entry.EventType != filter.EventType {
			continue
		}
		if filter.UserID != nil && (entry.UserID == nil || *entry.UserID != *filter.UserID) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditPageSize
	}
	return page(matched, filter.Offset, limit), len(matched), nil
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

// memTx is a view over one memState. Read-only views reject writes.
type memTx struct {
	st       *memState
	writable bool
}

func (t *memTx) write() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (User, error) {
	user, ok := t.st.users[id]
	if !ok {
		return User{}, fmt.Errorf("get user: %w", sql.ErrNoRows)
	}
	return user, nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (User, error) {
	for _, user := range t.st.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, fmt.Errorf("get user by email: %w", sql.ErrNoRows)
}

func (t *memTx) UpdateUser(_ context.Context, user User) error {
	if err := t.write(); err != nil {
		return err
	}
	existing, ok := t.st.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if user.Role != UserRoleUser && user.Role != UserRoleAdmin {
		return fmt.Errorf("update user: %w: role %q", ErrConstraint, user.Role)
	}
	existing.Name = user.Name
	existing.Role = user.Role
	existing.Active = user.Active
	t.st.users[user.ID] = existing
	return nil
}

func (t *memTx) DeleteUserCascade(ctx context.Context, id int64) (UserCascade, error) {
	if err := t.write(); err != nil {
		return UserCascade{}, err
	}
	if _, ok := t.st.users[id]; !ok {
		return UserCascade{}, sql.ErrNoRows
	}

	var out UserCascade
	for _, checklistID := range sortedIDs(t.st.checklists, func(c Checklist) bool { return c.OwnerID == id }) {
		removed, err := t.DeleteChecklistCascade(ctx, checklistID)
		if err != nil {
			return UserCascade{}, err
		}
		out.Checklists++
		out.Owned.add(removed)
	}
	for collabID, collaborator := range t.st.collaborators {
		if collaborator.UserID == id {
			delete(t.st.collaborators, collabID)
			out.Collaborations++
			continue
		}
		if collaborator.InvitedBy != nil && *collaborator.InvitedBy == id {
			collaborator.InvitedBy = nil
			t.st.collaborators[collabID] = collaborator
		}
	}
	for tagID, tag := range t.st.tags {
		if tag.UserID != id {
			continue
		}
		for key := range t.st.itemTags {
			if key.tagID == tagID {
				delete(t.st.itemTags, key)
				out.TagLinks++
			}
		}
		delete(t.st.tags, tagID)
		out.Tags++
	}
	delete(t.st.users, id)
	return out, nil
}

func sortedIDs[V any](rows map[int64]V, keep func(V) bool) []int64 {
	var ids []int64
	for id, row := range rows {
		if keep(row) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTx) GetChecklist(_ context.Context, id int64) (Checklist, error) {
	checklist, ok := t.st.checklists[id]
	if !ok {
		return Checklist{}, fmt.Errorf("get checklist: %w", sql.ErrNoRows)
	}
	return checklist, nil
}

// LockChecklist needs no row lock here: the store's writer mutex already
// serializes every read-write transaction.
func (t *memTx) LockChecklist(ctx context.Context, id int64) (Checklist, error) {
	return t.GetChecklist(ctx, id)
}

func (t *memTx) GetChecklistByShareToken(_ context.Context, token string) (Checklist, error) {
	for _, checklist := range t.st.checklists {
		if checklist.ShareToken != nil && *checklist.ShareToken == token {
			return checklist, nil
		}
	}
	return Checklist{}, fmt.Errorf("get checklist by share token: %w", sql.ErrNoRows)
}

func (t *memTx) ShareTokenExists(ctx context.Context, token string) (bool, error) {
	_, err := t.GetChecklistByShareToken(ctx, token)
	return err == nil, nil
}

func (t *memTx) CountActiveChecklists(_ context.Context, ownerID int64) (int, error) {
	return len(sortedIDs(t.st.checklists, func(c Checklist) bool {
		return c.OwnerID == ownerID && c.DeletedAt == nil
	})), nil
}

func (t *memTx) checkChecklist(checklist Checklist) error {
	if checklist.IsPublic != (checklist.ShareToken != nil) {
		return fmt.Errorf("%w: checklists_share_token_matches_public", ErrConstraint)
	}
	if _, ok := t.st.users[checklist.OwnerID]; !ok {
		return fmt.Errorf("%w: checklists_owner_id_fkey", ErrConstraint)
	}
	if checklist.ShareToken == nil {
		return nil
	}
	for id, other := range t.st.checklists {
		if id != checklist.ID && other.ShareToken != nil && *other.ShareToken == *checklist.ShareToken {
			return fmt.Errorf("%w: checklists_share_token_key", ErrDuplicate)
		}
	}
	return nil
}

func (t *memTx) InsertChecklist(_ context.Context, checklist *Checklist) error {
	if err := t.write(); err != nil {
		return err
	}
	if err := t.checkChecklist(*checklist); err != nil {
		return fmt.Errorf("insert checklist: %w", err)
	}
	checklist.ID = t.st.next("checklists")
	t.st.checklists[checklist.ID] = *checklist
	return nil
}

func (t *memTx) UpdateChecklist(_ context.Context, checklist Checklist) error {
	if err := t.write(); err != nil {
		return err
	}
	existing, ok := t.st.checklists[checklist.ID]
	if !ok {
		return sql.ErrNoRows
	}
	checklist.OwnerID = existing.OwnerID
	checklist.CreatedAt = existing.CreatedAt
	if err := t.checkChecklist(checklist); err != nil {
		return fmt.Errorf("update checklist: %w", err)
	}
	t.st.checklists[checklist.ID] = checklist
	return nil
}

func (t *memTx) TouchChecklist(_ context.Context, id int64, at time.Time) error {
	if err := t.write(); err != nil {
		return err
	}
	checklist, ok := t.st.checklists[id]
	if !ok {
		return sql.ErrNoRows
	}
	checklist.UpdatedAt = at
	t.st.checklists[id] = checklist
	return nil
}

func (t *memTx) DeleteChecklistCascade(_ context.Context, id int64) (ChecklistCascade, error) {
	if err := t.write(); err != nil {
		return ChecklistCascade{}, err
	}
	if _, ok := t.st.checklists[id]; !ok {
		return ChecklistCascade{}, sql.ErrNoRows
	}

	var out ChecklistCascade
	for itemID, item := range t.st.items {
		if item.ChecklistID != id {
			continue
		}
		out.ItemTags += t.dropItemTags(itemID)
		delete(t.st.items, itemID)
		out.Items++
	}
	for sectionID, section := range t.st.sections {
		if section.ChecklistID == id {
			delete(t.st.sections, sectionID)
			out.Sections++
		}
	}
	for collabID, collaborator := range t.st.collaborators {
		if collaborator.ChecklistID == id {
			delete(t.st.collaborators, collabID)
			out.Collaborators++
		}
	}
	delete(t.st.checklists, id)
	return out, nil
}

func (t *memTx) dropItemTags(itemID int64) int {
	removed := 0
	for key := range t.st.itemTags {
		if key.itemID == itemID {
			delete(t.st.itemTags, key)
			removed++
		}
	}
	return removed
}

func (t *memTx) stats(id int64) Stats {
	var stats Stats
	for _, section := range t.st.sections {
		if section.ChecklistID == id {
			stats.SectionCount++
		}
	}
	for _, item := range t.st.items {
		if item.ChecklistID != id {
			continue
		}
		stats.ItemCount++
		if item.Completed {
			stats.CompletedCount++
		}
	}
	return stats
}

func (t *memTx) ChecklistStats(_ context.Context, id int64) (Stats, error) {
	if _, ok := t.st.checklists[id]; !ok {
		return Stats{}, fmt.Errorf("checklist stats: %w", sql.ErrNoRows)
	}
	return t.stats(id), nil
}

func sortByRecent(checklists []ChecklistSummary) {
	sort.Slice(checklists, func(i, j int) bool {
		if !checklists[i].UpdatedAt.Equal(checklists[j].UpdatedAt) {
			return checklists[i].UpdatedAt.After(checklists[j].UpdatedAt)
		}
		return checklists[i].ID > checklists[j].ID
	})
}

func (t *memTx) ListChecklists(_ context.Context, query ChecklistQuery) ([]ChecklistSummary, int, error) {
	search := strings.ToLower(query.Search)
	var matched []ChecklistSummary
	for _, checklist := range t.st.checklists {
		if checklist.OwnerID != query.OwnerID || checklist.DeletedAt != nil {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(checklist.Title), search) &&
			!strings.Contains(strings.ToLower(checklist.Description), search) {
			continue
		}
		matched = append(matched, ChecklistSummary{Checklist: checklist, Stats: t.stats(checklist.ID)})
	}
	sortByRecent(matched)
	return page(matched, query.Offset, query.Limit), len(matched), nil
}

func (t *memTx) ListSharedChecklists(_ context.Context, userID int64) ([]SharedChecklist, error) {
	var out []SharedChecklist
	for _, collaborator := range t.st.collaborators {
		if collaborator.UserID != userID {
			continue
		}
		checklist, ok := t.st.checklists[collaborator.ChecklistID]
		if !ok || checklist.DeletedAt != nil {
			continue
		}
		owner := t.st.users[checklist.OwnerID]
		out = append(out, SharedChecklist{
			ChecklistSummary: ChecklistSummary{Checklist: checklist, Stats: t.stats(checklist.ID)},
			Role:             collaborator.Role,
			OwnerName:        owner.Name,
			OwnerEmail:       owner.Email,
			SharedAt:         collaborator.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SharedAt.Equal(out[j].SharedAt) {
			return out[i].SharedAt.After(out[j].SharedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) ListTrashedChecklists(_ context.Context, ownerID int64, deletedAfter time.Time) ([]Checklist, error) {
	var out []Checklist
	for _, checklist := range t.st.checklists {
		if checklist.OwnerID == ownerID && checklist.DeletedAt != nil && checklist.DeletedAt.After(deletedAfter) {
			out = append(out, checklist)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(*out[j].DeletedAt) {
			return out[i].DeletedAt.After(*out[j].DeletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) LockParent(_ context.Context, scope ordering.Scope) error {
	switch scope.Kind {
	case ordering.KindSections:
		if _, ok := t.st.checklists[scope.ParentID]; !ok {
			return sql.ErrNoRows
		}
	case ordering.KindItems:
		if _, ok := t.st.sections[scope.ParentID]; !ok {
			return sql.ErrNoRows
		}
	default:
		return fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	return nil
}

func (t *memTx) Siblings(_ context.Context, scope ordering.Scope) ([]ordering.Sibling, error) {
	var out []ordering.Sibling
	switch scope.Kind {
	case ordering.KindSections:
		for _, section := range t.st.sections {
			if section.ChecklistID == scope.ParentID {
				out = append(out, ordering.Sibling{ID: section.ID, Pos: section.OrderPos})
			}
		}
	case ordering.KindItems:
		for _, item := range t.st.items {
			if item.SectionID == scope.ParentID {
				out = append(out, ordering.Sibling{ID: item.ID, Pos: item.OrderPos})
			}
		}
	default:
		return nil, fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) SetPositions(_ context.Context, scope ordering.Scope, positions []ordering.Sibling) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, p := range positions {
		switch scope.Kind {
		case ordering.KindSections:
			section, ok := t.st.sections[p.ID]
			if !ok || section.ChecklistID != scope.ParentID {
				return sql.ErrNoRows
			}
			section.OrderPos = p.Pos
			t.st.sections[p.ID] = section
		case ordering.KindItems:
			item, ok := t.st.items[p.ID]
			if !ok || item.SectionID != scope.ParentID {
				return sql.ErrNoRows
			}
			item.OrderPos = p.Pos
			t.st.items[p.ID] = item
		default:
			return fmt.Errorf("unknown scope kind %q", scope.Kind)
		}
	}
	return nil
}

func (t *memTx) GetSection(_ context.Context, id int64) (Section, error) {
	section, ok := t.st.sections[id]
	if !ok {
		return Section{}, fmt.Errorf("get section: %w", sql.ErrNoRows)
	}
	return section, nil
}

func (t *memTx) ListSections(_ context.Context, checklistID int64) ([]Section, error) {
	var out []Section
	for _, section := range t.st.sections {
		if section.ChecklistID == checklistID {
			out = append(out, section)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderPos != out[j].OrderPos {
			return out[i].OrderPos < out[j].OrderPos
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) CountSections(_ context.Context, checklistID int64) (int, error) {
	return len(sortedIDs(t.st.sections, func(s Section) bool { return s.ChecklistID == checklistID })), nil
}

func (t *memTx) InsertSection(_ context.Context, section *Section) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.st.checklists[section.ChecklistID]; !ok {
		return fmt.Errorf("insert section: %w: sections_checklist_id_fkey", ErrConstraint)
	}
	section.ID = t.st.next("sections")
	t.st.sections[section.ID] = *section
	return nil
}

func (t *memTx) RenameSection(_ context.Context, id int64, name string) error {
	if err := t.write(); err != nil {
		return err
	}
	section, ok := t.st.sections[id]
	if !ok {
		return sql.ErrNoRows
	}
	section.Name = name
	t.st.sections[id] = section
	return nil
}

func (t *memTx) DeleteSection(_ context.Context, id int64) (int, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	if _, ok := t.st.sections[id]; !ok {
		return 0, sql.ErrNoRows
	}
	removed := 0
	for itemID, item := range t.st.items {
		if item.SectionID == id {
			t.dropItemTags(itemID)
			delete(t.st.items, itemID)
			removed++
		}
	}
	delete(t.st.sections, id)
	return removed, nil
}

func (t *memTx) GetItem(_ context.Context, id int64) (Item, error) {
	item, ok := t.st.items[id]
	if !ok {
		return Item{}, fmt.Errorf("get item: %w", sql.ErrNoRows)
	}
	return item, nil
}

func (t *memTx) ListItems(_ context.Context, checklistID int64) ([]Item, error) {
	var out []Item
	for _, item := range t.st.items {
		if item.ChecklistID == checklistID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := t.st.sections[out[i].SectionID], t.st.sections[out[j].SectionID]
		if si.OrderPos != sj.OrderPos {
			return si.OrderPos < sj.OrderPos
		}
		if si.ID != sj.ID {
			return si.ID < sj.ID
		}
		if out[i].OrderPos != out[j].OrderPos {
			return out[i].OrderPos < out[j].OrderPos
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) ListItemsByID(_ context.Context, checklistID int64, ids []int64) ([]Item, error) {
	var out []Item
	seen := map[int64]bool{}
	for _, id := range ids {
		item, ok := t.st.items[id]
		if !ok || item.ChecklistID != checklistID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CountItems(_ context.Context, checklistID int64) (int, error) {
	return len(sortedIDs(t.st.items, func(i Item) bool { return i.ChecklistID == checklistID })), nil
}

func (t *memTx) InsertItem(_ context.Context, item *Item) error {
	if err := t.write(); err != nil {
		return err
	}
	section, ok := t.st.sections[item.SectionID]
	if !ok || section.ChecklistID != item.ChecklistID {
		return fmt.Errorf("insert item: %w: items_section_id_fkey", ErrConstraint)
	}
	item.ID = t.st.next("items")
	t.st.items[item.ID] = *item
	return nil
}

func (t *memTx) UpdateItemText(_ context.Context, id int64, text string) error {
	if err := t.write(); err != nil {
		return err
	}
	item, ok := t.st.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Text = text
	t.st.items[id] = item
	return nil
}

func (t *memTx) SetItemsCompleted(_ context.Context, ids []int64, completed bool) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, id := range ids {
		item, ok := t.st.items[id]
		if !ok {
			continue
		}
		item.Completed = completed
		t.st.items[id] = item
	}
	return nil
}

func (t *memTx) ToggleItemCompleted(_ context.Context, id int64) (bool, error) {
	if err := t.write(); err != nil {
		return false, err
	}
	item, ok := t.st.items[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	item.Completed = !item.Completed
	t.st.items[id] = item
	return item.Completed, nil
}

func (t *memTx) DeleteItems(_ context.Context, ids []int64) error {
	if err := t.write(); err != nil {
		return err
	}
	removed := 0
	for _, id := range ids {
		if _, ok := t.st.items[id]; !ok {
			continue
		}
		t.dropItemTags(id)
		delete(t.st.items, id)
		removed++
	}
	if len(ids) > 0 && removed == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *memTx) GetTag(_ context.Context, id int64) (Tag, error) {
	tag, ok := t.st.tags[id]
	if !ok {
		return Tag{}, fmt.Errorf("get tag: %w", sql.ErrNoRows)
	}
	return tag, nil
}

func (t *memTx) ListTags(_ context.Context, userID int64) ([]Tag, error) {
	var out []Tag
	for _, tag := range t.st.tags {
		if tag.UserID == userID {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) CountTags(_ context.Context, userID int64) (int, error) {
	return len(sortedIDs(t.st.tags, func(tag Tag) bool { return tag.UserID == userID })), nil
}

func (t *memTx) TagNameExists(_ context.Context, userID int64, name string, exceptID int64) (bool, error) {
	for id, tag := range t.st.tags {
		if id != exceptID && tag.UserID == userID && tag.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertTag(ctx context.Context, tag *Tag) error {
	if err := t.write(); err != nil {
		return err
	}
	if taken, _ := t.TagNameExists(ctx, tag.UserID, tag.Name, 0); taken {
		return fmt.Errorf("insert tag: %w: tags_user_name_unique", ErrDuplicate)
	}
	tag.ID = t.st.next("tags")
	t.st.tags[tag.ID] = *tag
	return nil
}

func (t *memTx) UpdateTag(ctx context.Context, tag Tag) error {
	if err := t.write(); err != nil {
		return err
	}
	existing, ok := t.st.tags[tag.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if taken, _ := t.TagNameExists(ctx, existing.UserID, tag.Name, tag.ID); taken {
		return fmt.Errorf("update tag: %w: tags_user_name_unique", ErrDuplicate)
	}
	existing.Name = tag.Name
	existing.Color = tag.Color
	existing.Emoji = tag.Emoji
	t.st.tags[tag.ID] = existing
	return nil
}

func (t *memTx) DeleteTag(_ context.Context, id int64) (int, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	if _, ok := t.st.tags[id]; !ok {
		return 0, sql.ErrNoRows
	}
	removed := 0
	for key := range t.st.itemTags {
		if key.tagID == id {
			delete(t.st.itemTags, key)
			removed++
		}
	}
	delete(t.st.tags, id)
	return removed, nil
}

func (t *memTx) InsertItemTag(_ context.Context, itemID, tagID int64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.st.items[itemID]; !ok {
		return fmt.Errorf("assign tag: %w: item_tags_item_id_fkey", ErrConstraint)
	}
	if _, ok := t.st.tags[tagID]; !ok {
		return fmt.Errorf("assign tag: %w: item_tags_tag_id_fkey", ErrConstraint)
	}
	key := itemTagKey{itemID: itemID, tagID: tagID}
	if _, ok := t.st.itemTags[key]; ok {
		return fmt.Errorf("assign tag: %w: item_tags_pkey", ErrDuplicate)
	}
	t.st.itemTags[key] = time.Now().UTC()
	return nil
}

func (t *memTx) DeleteItemTag(_ context.Context, itemID, tagID int64) (bool, error) {
	if err := t.write(); err != nil {
		return false, err
	}
	key := itemTagKey{itemID: itemID, tagID: tagID}
	if _, ok := t.st.itemTags[key]; !ok {
		return false, nil
	}
	delete(t.st.itemTags, key)
	return true, nil
}

func (t *memTx) ListChecklistItemTags(_ context.Context, checklistID int64) (map[int64][]Tag, error) {
	out := map[int64][]Tag{}
	for key := range t.st.itemTags {
		item, ok := t.st.items[key.itemID]
		if !ok || item.ChecklistID != checklistID {
			continue
		}
		out[key.itemID] = append(out[key.itemID], t.st.tags[key.tagID])
	}
	for itemID := range out {
		tags := out[itemID]
		sort.Slice(tags, func(i, j int) bool {
			if tags[i].Name != tags[j].Name {
				return tags[i].Name < tags[j].Name
			}
			return tags[i].ID < tags[j].ID
		})
	}
	return out, nil
}

func (t *memTx) withUser(collaborator Collaborator) Collaborator {
	user := t.st.users[collaborator.UserID]
	collaborator.Email = user.Email
	collaborator.Name = user.Name
	return collaborator
}

func (t *memTx) GetCollaborator(_ context.Context, checklistID, userID int64) (Collaborator, error) {
	for _, collaborator := range t.st.collaborators {
		if collaborator.ChecklistID == checklistID && collaborator.UserID == userID {
			return t.withUser(collaborator), nil
		}
	}
	return Collaborator{}, fmt.Errorf("get collaborator: %w", sql.ErrNoRows)
}

func (t *memTx) ListCollaborators(_ context.Context, checklistID int64) ([]Collaborator, error) {
	var out []Collaborator
	for _, collaborator := range t.st.collaborators {
		if collaborator.ChecklistID == checklistID {
			out = append(out, t.withUser(collaborator))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) CountCollaborators(_ context.Context, checklistID int64) (int, error) {
	return len(sortedIDs(t.st.collaborators, func(c Collaborator) bool { return c.ChecklistID == checklistID })), nil
}

func (t *memTx) InsertCollaborator(ctx context.Context, collaborator *Collaborator) error {
	if err := t.write(); err != nil {
		return err
	}
	checklist, ok := t.st.checklists[collaborator.ChecklistID]
	if !ok {
		return fmt.Errorf("insert collaborator: %w: collaborators_checklist_id_fkey", ErrConstraint)
	}
	if _, ok := t.st.users[collaborator.UserID]; !ok {
		return fmt.Errorf("insert collaborator: %w: collaborators_user_id_fkey", ErrConstraint)
	}
	if checklist.OwnerID == collaborator.UserID {
		return fmt.Errorf("insert collaborator: %w: checklist owner cannot be a collaborator", ErrConstraint)
	}
	if collaborator.Role != "viewer" && collaborator.Role != "collaborator" {
		return fmt.Errorf("insert collaborator: %w: collaborators_role_check", ErrConstraint)
	}
	if _, err := t.GetCollaborator(ctx, collaborator.ChecklistID, collaborator.UserID); err == nil {
		return fmt.Errorf("insert collaborator: %w: collaborators_checklist_user_unique", ErrDuplicate)
	}
	collaborator.ID = t.st.next("collaborators")
	stored := *collaborator
	stored.Email, stored.Name = "", ""
	t.st.collaborators[collaborator.ID] = stored
	return nil
}

func (t *memTx) UpdateCollaboratorRole(_ context.Context, checklistID, userID int64, role string) error {
	if err := t.write(); err != nil {
		return err
	}
	if role != "viewer" && role != "collaborator" {
		return fmt.Errorf("update collaborator role: %w: collaborators_role_check", ErrConstraint)
	}
	for id, collaborator := range t.st.collaborators {
		if collaborator.ChecklistID == checklistID && collaborator.UserID == userID {
			collaborator.Role = role
			t.st.collaborators[id] = collaborator
			return nil
		}
	}
	return sql.ErrNoRows
}

func (t *memTx) DeleteCollaborator(_ context.Context, checklistID, userID int64) error {
	if err := t.write(); err != nil {
		return err
	}
	for id, collaborator := range t.st.collaborators {
		if collaborator.ChecklistID == checklistID && collaborator.UserID == userID {
			delete(t.st.collaborators, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

var _ Tx = (*memTx)(nil)
