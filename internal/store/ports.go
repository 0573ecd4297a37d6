// Package store defines the ports to the external record store and the
// helpers shared by its adapters.
package store

import (
	"context"
	"errors"
	"fmt"

	"moviments/internal/core"
)

var ErrNotConfigured = errors.New("record store not configured")

// Ports for outbound adapters.
type (
	// ReferenceReader lists the reference categories of each family.
	ReferenceReader interface {
		ListAccounts(ctx context.Context) ([]core.Category, error)
		ListExpenseTypes(ctx context.Context) ([]core.Category, error)
		ListIncomeTypes(ctx context.Context) ([]core.Category, error)
		ListMonths(ctx context.Context) ([]core.Category, error)
		ListSubscriptions(ctx context.Context) ([]core.Category, error)
		ListDebts(ctx context.Context) ([]core.Category, error)
		ListSavings(ctx context.Context) ([]core.Category, error)
	}

	// RecordWriter creates records. It never updates or deletes.
	RecordWriter interface {
		CreateExpense(ctx context.Context, r core.ExpenseRecord) (ref string, err error)
		CreateIncome(ctx context.Context, r core.IncomeRecord) (ref string, err error)
		CreateTransfer(ctx context.Context, r core.TransferRecord) (ref string, err error)
	}

	Store interface {
		ReferenceReader
		RecordWriter
	}
)

// Family names a reference list.
type Family string

const (
	Accounts      Family = "accounts"
	ExpenseTypes  Family = "expense_types"
	IncomeTypes   Family = "income_types"
	Months        Family = "months"
	Subscriptions Family = "subscriptions"
	Debts         Family = "debts"
	Savings       Family = "savings"
)

// Families lists every reference family in display order.
var Families = []Family{Accounts, ExpenseTypes, IncomeTypes, Months, Subscriptions, Debts, Savings}

// List dispatches to the reader method of family f.
func List(ctx context.Context, r ReferenceReader, f Family) ([]core.Category, error) {
	switch f {
	case Accounts:
		return r.ListAccounts(ctx)
	case ExpenseTypes:
		return r.ListExpenseTypes(ctx)
	case IncomeTypes:
		return r.ListIncomeTypes(ctx)
	case Months:
		return r.ListMonths(ctx)
	case Subscriptions:
		return r.ListSubscriptions(ctx)
	case Debts:
		return r.ListDebts(ctx)
	case Savings:
		return r.ListSavings(ctx)
	}
	return nil, fmt.Errorf("unknown reference family %q", f)
}

// CreateTransaction creates the record matching the transaction kind.
func CreateTransaction(ctx context.Context, w RecordWriter, tx core.Transaction) (string, error) {
	switch tx.Type {
	case core.KindExpense:
		rec, err := tx.ExpenseRecord()
		if err != nil {
			return "", err
		}
		return w.CreateExpense(ctx, rec)
	case core.KindIncome:
		rec, err := tx.IncomeRecord()
		if err != nil {
			return "", err
		}
		return w.CreateIncome(ctx, rec)
	case core.KindTransfer:
		rec, err := tx.TransferRecord()
		if err != nil {
			return "", err
		}
		return w.CreateTransfer(ctx, rec)
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownKind, tx.Type)
}
