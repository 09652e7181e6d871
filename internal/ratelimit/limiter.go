// Package ratelimit throttles write-heavy actions per user with fixed-window
// counters. Counters live either in process memory or in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"checklists/api/internal/metrics"
)

type Action string

const (
	CreateChecklist    Action = "create_checklist"
	CreateSection      Action = "create_section"
	CreateItem         Action = "create_item"
	CreateTag          Action = "create_tag"
	InviteCollaborator Action = "invite_collaborator"
	Reorder            Action = "reorder"
)

// Rule allows Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func DefaultRules() map[Action]Rule {
	return map[Action]Rule{
		CreateChecklist:    {Limit: 10, Window: 5 * time.Minute},
		CreateSection:      {Limit: 20, Window: 5 * time.Minute},
		CreateItem:         {Limit: 30, Window: 5 * time.Minute},
		CreateTag:          {Limit: 20, Window: 5 * time.Minute},
		InviteCollaborator: {Limit: 20, Window: time.Hour},
		Reorder:            {Limit: 60, Window: time.Minute},
	}
}

// Counter increments key and returns the new count. The first increment of
// a key starts its window; the key disappears when the window ends.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type LimitedError struct {
	Action Action
	Limit  int
	Window time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limit for %s exceeded (%d per %s)", e.Action, e.Limit, e.Window)
}

type Limiter struct {
	counter Counter
	rules   map[Action]Rule
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewLimiter(counter Counter, rules map[Action]Rule, logger *zap.Logger, m *metrics.Metrics) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{counter: counter, rules: rules, logger: logger, metrics: m}
}

func key(action Action, userID int64) string {
	return string(action) + ":" + strconv.FormatInt(userID, 10)
}

// Allow counts one hit for userID on action. It returns a *LimitedError once
// the window's budget is spent. Actions without a rule are never limited, and
// a failing counter lets the request through.
func (l *Limiter) Allow(ctx context.Context, action Action, userID int64) error {
	if l == nil || l.counter == nil {
		return nil
	}
	rule, ok := l.rules[action]
	if !ok || rule.Limit <= 0 {
		return nil
	}

	count, err := l.counter.Increment(ctx, key(action, userID), rule.Window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing request",
			zap.String("action", string(action)),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if count > int64(rule.Limit) {
		l.metrics.RateLimited(string(action))
		return &LimitedError{Action: action, Limit: rule.Limit, Window: rule.Window}
	}
	return nil
}
