package ordering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	positions map[int64]int
	locked    []Scope
	writes    int
	lockErr   error
}

func newFakeRepo(positions map[int64]int) *fakeRepo {
	return &fakeRepo{positions: positions}
}

func (f *fakeRepo) LockParent(_ context.Context, scope Scope) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = append(f.locked, scope)
	return nil
}

func (f *fakeRepo) Siblings(context.Context, Scope) ([]Sibling, error) {
	out := make([]Sibling, 0, len(f.positions))
	for id, pos := range f.positions {
		out = append(out, Sibling{ID: id, Pos: pos})
	}
	return out, nil
}

func (f *fakeRepo) SetPositions(_ context.Context, _ Scope, positions []Sibling) error {
	f.writes++
	for _, p := range positions {
		f.positions[p.ID] = p.Pos
	}
	return nil
}

func assertDense(t *testing.T, positions map[int64]int) {
	t.Helper()
	seen := map[int]bool{}
	for id, pos := range positions {
		require.Falsef(t, seen[pos], "duplicate position %d (id %d)", pos, id)
		seen[pos] = true
	}
	for want := 1; want <= len(positions); want++ {
		require.Truef(t, seen[want], "missing position %d in %v", want, positions)
	}
}

func TestDenseKeepsRelativeOrder(t *testing.T) {
	all, changed := Dense([]Sibling{{ID: 7, Pos: 5}, {ID: 3, Pos: 1}, {ID: 9, Pos: 3}})

	assert.Equal(t, []Sibling{{ID: 3, Pos: 1}, {ID: 9, Pos: 2}, {ID: 7, Pos: 3}}, all)
	assert.Equal(t, []Sibling{{ID: 9, Pos: 2}, {ID: 7, Pos: 3}}, changed)
}

func TestDenseBreaksTiesByID(t *testing.T) {
	all, _ := Dense([]Sibling{{ID: 4, Pos: 2}, {ID: 2, Pos: 2}, {ID: 1, Pos: 1}})
	assert.Equal(t, []Sibling{{ID: 1, Pos: 1}, {ID: 2, Pos: 2}, {ID: 4, Pos: 3}}, all)
}

func TestValidatePermutation(t *testing.T) {
	current := []Sibling{{ID: 1, Pos: 1}, {ID: 2, Pos: 2}, {ID: 3, Pos: 3}}
	cases := []struct {
		name string
		ids  []int64
		ok   bool
	}{
		{name: "same order", ids: []int64{1, 2, 3}, ok: true},
		{name: "reversed", ids: []int64{3, 2, 1}, ok: true},
		{name: "missing", ids: []int64{1, 2}},
		{name: "extra", ids: []int64{1, 2, 3, 4}},
		{name: "foreign", ids: []int64{1, 2, 4}},
		{name: "duplicate", ids: []int64{1, 1, 2}},
		{name: "duplicate padded", ids: []int64{1, 2, 3, 3}},
		{name: "empty", ids: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePermutation(current, tc.ids)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidPermutation)
		})
	}
}

func TestReindexClosesGap(t *testing.T) {
	repo := newFakeRepo(map[int64]int{10: 1, 12: 3, 13: 4})

	moved, err := Reindex(context.Background(), repo, Items(5))

	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Equal(t, map[int64]int{10: 1, 12: 2, 13: 3}, repo.positions)
	assert.Equal(t, []Scope{Items(5)}, repo.locked)
}

func TestReindexNoopWhenDense(t *testing.T) {
	repo := newFakeRepo(map[int64]int{1: 1, 2: 2})

	moved, err := Reindex(context.Background(), repo, Sections(1))

	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Zero(t, repo.writes)
}

func TestApplyReorder(t *testing.T) {
	repo := newFakeRepo(map[int64]int{1: 1, 2: 2, 3: 3})

	require.NoError(t, ApplyReorder(context.Background(), repo, Sections(9), []int64{3, 1, 2}))

	assert.Equal(t, map[int64]int{3: 1, 1: 2, 2: 3}, repo.positions)
	assertDense(t, repo.positions)
}

func TestApplyReorderRejectsWithoutWriting(t *testing.T) {
	for _, ids := range [][]int64{{1, 2}, {1, 2, 3, 4}, {1, 2, 2}} {
		repo := newFakeRepo(map[int64]int{1: 1, 2: 2, 3: 3})

		err := ApplyReorder(context.Background(), repo, Items(2), ids)

		require.ErrorIs(t, err, ErrInvalidPermutation)
		assert.Zero(t, repo.writes)
		assert.Equal(t, map[int64]int{1: 1, 2: 2, 3: 3}, repo.positions)
	}
}

func TestNextPosition(t *testing.T) {
	ctx := context.Background()

	next, err := NextPosition(ctx, newFakeRepo(map[int64]int{}), Sections(1))
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	next, err = NextPosition(ctx, newFakeRepo(map[int64]int{4: 1, 5: 2}), Sections(1))
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestLockFailureStopsBeforeReading(t *testing.T) {
	repo := newFakeRepo(map[int64]int{1: 2})
	repo.lockErr = errors.New("lock timeout")

	_, err := Reindex(context.Background(), repo, Items(1))

	require.Error(t, err)
	assert.Zero(t, repo.writes)
}

func TestMixedOperationsStayDense(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(map[int64]int{})
	scope := Items(1)

	for id := int64(1); id <= 6; id++ {
		pos, err := NextPosition(ctx, repo, scope)
		require.NoError(t, err)
		repo.positions[id] = pos
	}
	delete(repo.positions, 2)
	_, err := Reindex(ctx, repo, scope)
	require.NoError(t, err)
	assertDense(t, repo.positions)

	require.NoError(t, ApplyReorder(ctx, repo, scope, []int64{6, 5, 4, 3, 1}))
	delete(repo.positions, 4)
	_, err = Reindex(ctx, repo, scope)
	require.NoError(t, err)

	assertDense(t, repo.positions)
	assert.Equal(t, map[int64]int{6: 1, 5: 2, 3: 3, 1: 4}, repo.positions)
}
