package store

import (
	"context"
	"errors"
	"fmt"
)

type collectionCounter interface {
	Count(ctx context.Context, name Collection) (int, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking storage internals to callers.
type StatsProvider struct {
	counter collectionCounter
}

// NewStatsProvider constructs a StatsProvider backed by the provided counter.
func NewStatsProvider(counter collectionCounter) *StatsProvider {
	return &StatsProvider{counter: counter}
}

// CountUsers returns the number of registered users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int, error) {
	return p.count(ctx, CollectionUsers)
}

// CountPromotions returns the number of promotions.
func (p *StatsProvider) CountPromotions(ctx context.Context) (int, error) {
	return p.count(ctx, CollectionPromotions)
}

// CountAdmins returns the number of administrators.
func (p *StatsProvider) CountAdmins(ctx context.Context) (int, error) {
	return p.count(ctx, CollectionAdmins)
}

func (p *StatsProvider) count(ctx context.Context, name Collection) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.counter == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.counter.Count(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}

	return count, nil
}
