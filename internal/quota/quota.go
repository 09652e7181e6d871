package quota

import (
	"context"
	"fmt"
)

type Resource string

const (
	ChecklistsPerOwner        Resource = "checklists"
	SectionsPerChecklist      Resource = "sections"
	ItemsPerChecklist         Resource = "items"
	CollaboratorsPerChecklist Resource = "collaborators"
	TagsPerUser               Resource = "tags"
)

// Limits maps each resource to its ceiling. A resource with no entry is
// unbounded.
type Limits map[Resource]int

func Default() Limits {
	return Limits{
		ChecklistsPerOwner:        100,
		SectionsPerChecklist:      100,
		ItemsPerChecklist:         1000,
		CollaboratorsPerChecklist: 10,
		TagsPerUser:               50,
	}
}

type ExceededError struct {
	Resource Resource
	Limit    int
	Current  int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d of %d)", e.Resource, e.Current, e.Limit)
}

// Check fails when one more row would exceed the ceiling.
func (l Limits) Check(resource Resource, current int) error {
	limit, ok := l[resource]
	if !ok {
		return nil
	}
	if current >= limit {
		return &ExceededError{Resource: resource, Limit: limit, Current: current}
	}
	return nil
}

// Enforce counts with count and checks the result. Call it inside the
// transaction that performs the insert, right before the write.
func (l Limits) Enforce(ctx context.Context, resource Resource, count func(context.Context) (int, error)) error {
	if _, ok := l[resource]; !ok {
		return nil
	}
	current, err := count(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", resource, err)
	}
	return l.Check(resource, current)
}
