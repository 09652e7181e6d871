package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCeilings(t *testing.T) {
	limits := Default()
	assert.Equal(t, 100, limits[ChecklistsPerOwner])
	assert.Equal(t, 100, limits[SectionsPerChecklist])
	assert.Equal(t, 1000, limits[ItemsPerChecklist])
	assert.Equal(t, 10, limits[CollaboratorsPerChecklist])
	assert.Equal(t, 50, limits[TagsPerUser])
}

func TestCheckBoundary(t *testing.T) {
	limits := Default()

	require.NoError(t, limits.Check(CollaboratorsPerChecklist, 9))

	err := limits.Check(CollaboratorsPerChecklist, 10)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, CollaboratorsPerChecklist, exceeded.Resource)
	assert.Equal(t, 10, exceeded.Limit)
	assert.Equal(t, 10, exceeded.Current)
}

func TestUnknownResourceIsUnbounded(t *testing.T) {
	require.NoError(t, Limits{}.Check(TagsPerUser, 1_000_000))
}

func TestEnforcePropagatesCountError(t *testing.T) {
	boom := errors.New("connection reset")
	err := Default().Enforce(context.Background(), ItemsPerChecklist, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	var exceeded *ExceededError
	assert.False(t, errors.As(err, &exceeded))
}

func TestEnforceSkipsCountForUnboundedResource(t *testing.T) {
	called := false
	err := Limits{}.Enforce(context.Background(), TagsPerUser, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
