package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"moviments/internal/core"
)

// FetchBundle takes a snapshot of every reference family. The listings run
// concurrently; the first failure cancels the rest.
func FetchBundle(ctx context.Context, r ReferenceReader) (core.Bundle, error) {
	var b core.Bundle
	targets := map[Family]*[]core.Category{
		Accounts:      &b.Accounts,
		ExpenseTypes:  &b.ExpenseTypes,
		IncomeTypes:   &b.IncomeTypes,
		Months:        &b.Months,
		Subscriptions: &b.Subscriptions,
		Debts:         &b.Debts,
		Savings:       &b.Savings,
	}

	g, gctx := errgroup.WithContext(ctx)
	for family, dst := range targets {
		family, dst := family, dst
		g.Go(func() error {
			list, err := List(gctx, r, family)
			if err != nil {
				return fmt.Errorf("list %s: %w", family, err)
			}
			*dst = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Bundle{}, err
	}
	return b, nil
}
