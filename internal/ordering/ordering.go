// Package ordering keeps sibling positions dense. Sections are ordered within
// their checklist and items within their section; in both scopes order_pos
// must always be exactly {1..N}.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type Kind string

const (
	KindSections Kind = "sections"
	KindItems    Kind = "items"
)

// Scope names one parent and the kind of children being ordered under it.
type Scope struct {
	Kind     Kind
	ParentID int64
}

func Sections(checklistID int64) Scope {
	return Scope{Kind: KindSections, ParentID: checklistID}
}

func Items(sectionID int64) Scope {
	return Scope{Kind: KindItems, ParentID: sectionID}
}

func (s Scope) String() string {
	switch s.Kind {
	case KindSections:
		return fmt.Sprintf("sections of checklist %d", s.ParentID)
	case KindItems:
		return fmt.Sprintf("items of section %d", s.ParentID)
	default:
		return fmt.Sprintf("%s of %d", s.Kind, s.ParentID)
	}
}

type Sibling struct {
	ID  int64
	Pos int
}

var ErrInvalidPermutation = errors.New("invalid reorder set")

// Repository is the storage a scope is ordered in. Implementations must be
// bound to one open transaction; LockParent holds the parent row until it ends.
type Repository interface {
	LockParent(ctx context.Context, scope Scope) error
	Siblings(ctx context.Context, scope Scope) ([]Sibling, error)
	SetPositions(ctx context.Context, scope Scope, positions []Sibling) error
}

// Dense renumbers siblings 1..N keeping their relative order (previous
// position, ties broken by id). It returns the full sequence and the subset
// whose position moved.
func Dense(siblings []Sibling) ([]Sibling, []Sibling) {
	sorted := make([]Sibling, len(siblings))
	copy(sorted, siblings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Pos != sorted[j].Pos {
			return sorted[i].Pos < sorted[j].Pos
		}
		return sorted[i].ID < sorted[j].ID
	})

	var changed []Sibling
	for i := range sorted {
		want := i + 1
		if sorted[i].Pos != want {
			sorted[i].Pos = want
			changed = append(changed, sorted[i])
		}
	}
	return sorted, changed
}

// ValidatePermutation reports whether ids is exactly the set of current
// children, each listed once.
func ValidatePermutation(current []Sibling, ids []int64) error {
	live := make(map[int64]bool, len(current))
	for _, sibling := range current {
		live[sibling.ID] = true
	}

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %d", ErrInvalidPermutation, id)
		}
		seen[id] = true
		if !live[id] {
			return fmt.Errorf("%w: unknown id %d", ErrInvalidPermutation, id)
		}
	}
	if len(ids) != len(current) {
		return fmt.Errorf("%w: expected %d ids, got %d", ErrInvalidPermutation, len(current), len(ids))
	}
	return nil
}

// Permute assigns order_pos = index+1 following ids and returns the siblings
// whose position changes.
func Permute(current []Sibling, ids []int64) ([]Sibling, error) {
	if err := ValidatePermutation(current, ids); err != nil {
		return nil, err
	}
	before := make(map[int64]int, len(current))
	for _, sibling := range current {
		before[sibling.ID] = sibling.Pos
	}

	var changed []Sibling
	for i, id := range ids {
		if before[id] != i+1 {
			changed = append(changed, Sibling{ID: id, Pos: i + 1})
		}
	}
	return changed, nil
}

// Reindex closes gaps left by a deletion. It returns how many siblings moved.
func Reindex(ctx context.Context, repo Repository, scope Scope) (int, error) {
	if err := repo.LockParent(ctx, scope); err != nil {
		return 0, fmt.Errorf("lock %s: %w", scope, err)
	}
	siblings, err := repo.Siblings(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", scope, err)
	}
	_, changed := Dense(siblings)
	if len(changed) == 0 {
		return 0, nil
	}
	if err := repo.SetPositions(ctx, scope, changed); err != nil {
		return 0, fmt.Errorf("reindex %s: %w", scope, err)
	}
	return len(changed), nil
}

// ApplyReorder replaces the order of scope's children with ids. Nothing is
// written unless ids is a full permutation of the live children.
func ApplyReorder(ctx context.Context, repo Repository, scope Scope, ids []int64) error {
	if err := repo.LockParent(ctx, scope); err != nil {
		return fmt.Errorf("lock %s: %w", scope, err)
	}
	siblings, err := repo.Siblings(ctx, scope)
	if err != nil {
		return fmt.Errorf("list %s: %w", scope, err)
	}
	changed, err := Permute(siblings, ids)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	if err := repo.SetPositions(ctx, scope, changed); err != nil {
		return fmt.Errorf("reorder %s: %w", scope, err)
	}
	return nil
}

// NextPosition returns max(order_pos)+1, or 1 for an empty scope. The parent
// stays locked so concurrent inserts cannot claim the same slot.
func NextPosition(ctx context.Context, repo Repository, scope Scope) (int, error) {
	if err := repo.LockParent(ctx, scope); err != nil {
		return 0, fmt.Errorf("lock %s: %w", scope, err)
	}
	siblings, err := repo.Siblings(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", scope, err)
	}
	next := 1
	for _, sibling := range siblings {
		if sibling.Pos >= next {
			next = sibling.Pos + 1
		}
	}
	return next, nil
}
