package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"moviments/internal/core"
)

type fakeValues struct {
	data    map[string][][]any
	updates map[string][][]any
	err     error
}

func (f *fakeValues) Get(_ context.Context, rng string) ([][]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[rng], nil
}

func (f *fakeValues) Update(_ context.Context, rng string, rows [][]any) error {
	if f.updates == nil {
		f.updates = map[string][][]any{}
	}
	f.updates[rng] = rows
	return nil
}

func TestListReadsColumnA(t *testing.T) {
	v := &fakeValues{data: map[string][][]any{
		"Accounts!A2:A": {{"Caixa Enginyers"}, {}, {"# archived"}, {" Revolut "}, {"Caixa Enginyers"}},
	}}
	c := New(v)
	got, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	want := []core.Category{{ID: "Accounts!A2", Name: "Caixa Enginyers"}, {ID: "Accounts!A5", Name: "Revolut"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	empty, err := c.ListDebts(context.Background())
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListDebts() = %#v, %v", empty, err)
	}
}

func TestCreateExpenseAppendsWithNames(t *testing.T) {
	v := &fakeValues{data: map[string][][]any{
		"Accounts!A2:A": {{"Caixa Enginyers"}},
		"Expenses!A:A":  {{"Date"}, {"2025-04-30"}},
	}}
	c := New(v)
	accts, _ := c.ListAccounts(context.Background())

	ref, err := c.CreateExpense(context.Background(), core.ExpenseRecord{
		Date:      core.NewDate(2025, 5, 1),
		Name:      "CONDIS",
		Concept:   "TARGETA *1 CONDIS",
		Amount:    decimal.RequireFromString("15.30"),
		AccountID: accts[0].ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if ref != "Expenses!A3:K3" {
		t.Errorf("ref = %q", ref)
	}
	row := v.updates[ref][0]
	if row[0] != "2025-05-01" || row[3] != 15.3 || row[4] != "Caixa Enginyers" {
		t.Errorf("row = %v", row)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	c := New(&fakeValues{})
	_, err := c.CreateTransfer(context.Background(), core.TransferRecord{Name: "x", Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("CreateTransfer() error = %v", err)
	}
}

func TestColumn(t *testing.T) {
	if column(1) != "A" || column(11) != "K" {
		t.Errorf("column letters wrong")
	}
}
