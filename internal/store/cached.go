package store

import (
	"context"
	"log/slog"
	"time"

	"moviments/internal/cache"
	"moviments/internal/core"
)

// CachedReader serves reference listings from a TTL cache. Entries older
// than the TTL are fetched again; Invalidate drops them all at once.
type CachedReader struct {
	next  ReferenceReader
	lists *cache.LRUCache[[]core.Category]
}

var _ ReferenceReader = (*CachedReader)(nil)

func NewCachedReader(next ReferenceReader, ttl time.Duration) *CachedReader {
	return &CachedReader{
		next:  next,
		lists: cache.NewLRUCache[[]core.Category](len(Families), ttl),
	}
}

// Cache exposes the underlying cache for registration with a cleanup manager.
func (c *CachedReader) Cache() *cache.LRUCache[[]core.Category] {
	return c.lists
}

func (c *CachedReader) Invalidate() {
	c.lists.Purge()
}

// Refresh drops the cached lists and reads every family again, so the next
// batch starts from a warm cache.
func (c *CachedReader) Refresh(ctx context.Context) error {
	c.Invalidate()
	_, err := FetchBundle(ctx, c)
	return err
}

func (c *CachedReader) get(ctx context.Context, f Family) ([]core.Category, error) {
	if list, ok := c.lists.Get(string(f)); ok {
		return list, nil
	}
	list, err := List(ctx, c.next, f)
	if err != nil {
		return nil, err
	}
	c.lists.Set(string(f), list)
	slog.DebugContext(ctx, "Reference list cached", "family", f, "count", len(list))
	return list, nil
}

func (c *CachedReader) ListAccounts(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, Accounts)
}

func (c *CachedReader) ListExpenseTypes(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, ExpenseTypes)
}

func (c *CachedReader) ListIncomeTypes(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, IncomeTypes)
}

func (c *CachedReader) ListMonths(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, Months)
}

func (c *CachedReader) ListSubscriptions(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, Subscriptions)
}

func (c *CachedReader) ListDebts(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, Debts)
}

func (c *CachedReader) ListSavings(ctx context.Context) ([]core.Category, error) {
	return c.get(ctx, Savings)
}
