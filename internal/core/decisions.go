package core

import (
	"context"

	"interactiondb/pkg/domain"
)

// DecisionCache memoises conflict verdicts. The first verdict stored for a
// key wins.
type DecisionCache struct {
	store domain.DecisionStore
}

// NewDecisionCache wraps store.
func NewDecisionCache(store domain.DecisionStore) *DecisionCache {
	return &DecisionCache{store: store}
}

// Put stores a verdict unless one exists for key already.
func (c *DecisionCache) Put(ctx context.Context, key string, v domain.Verdict, automatic bool) error {
	err := c.store.PutDecision(ctx, domain.Decision{Key: key, Verdict: v, Automatic: automatic})
	if domain.IsDuplicate(err) {
		return nil
	}
	return err
}

// Get returns the stored verdict for key.
func (c *DecisionCache) Get(ctx context.Context, key string) (domain.Verdict, bool, error) {
	d, ok, err := c.store.Decision(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return d.Verdict, true, nil
}

// All lists stored decisions ordered by key.
func (c *DecisionCache) All(ctx context.Context) ([]domain.Decision, error) {
	return c.store.Decisions(ctx)
}
