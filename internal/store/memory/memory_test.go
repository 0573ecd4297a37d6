package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"moviments/internal/core"
	"moviments/internal/store"
)

func TestMemoryStoreCreateAndList(t *testing.T) {
	s := New(map[store.Family][]string{
		store.Accounts: {"Caixa Enginyers", "Revolut", "Caixa Enginyers"},
	})
	accounts, err := s.ListAccounts(context.Background())
	if err != nil || len(accounts) != 2 {
		t.Fatalf("unexpected accounts: %v err=%v", accounts, err)
	}
	if accounts[0].ID != "mem:accounts:1" || accounts[0].Name != "Caixa Enginyers" {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
	debts, _ := s.ListDebts(context.Background())
	if len(debts) != 0 {
		t.Errorf("debts = %v", debts)
	}

	ref, err := s.CreateExpense(context.Background(), core.ExpenseRecord{
		Date:   core.NewDate(2025, 5, 1),
		Name:   "CONDIS",
		Amount: decimal.RequireFromString("15.3"),
	})
	if err != nil || ref != "mem:expense:1" {
		t.Fatalf("unexpected create: ref=%q err=%v", ref, err)
	}
	if _, err := s.CreateIncome(context.Background(), core.IncomeRecord{Name: "x"}); err == nil {
		t.Error("income without date should fail validation")
	}
	e, i, tr := s.Counts()
	if e != 1 || i != 0 || tr != 0 {
		t.Errorf("Counts() = %d %d %d", e, i, tr)
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	months, _ := s.ListMonths(context.Background())
	if len(months) != 12 {
		t.Fatalf("expected default months, got %v", months)
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_accounts.txt", "# header\nRevolut\nRevolut\n\nING\n")
	mustWrite("seed_months.txt", "May 2025\nJune\n")

	s = NewFromFiles(dir)
	accounts, _ := s.ListAccounts(context.Background())
	if len(accounts) != 2 || accounts[0].Name != "Revolut" || accounts[1].Name != "ING" {
		t.Fatalf("unexpected accounts: %v", accounts)
	}
	months, _ = s.ListMonths(context.Background())
	if len(months) != 2 || months[1].Name != "June" {
		t.Fatalf("unexpected months: %v", months)
	}
	types, _ := s.ListIncomeTypes(context.Background())
	if len(types) != 2 {
		t.Fatalf("income types should keep defaults: %v", types)
	}
}
