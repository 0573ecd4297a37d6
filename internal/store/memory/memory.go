// Package memory is an in-process record store seeded from text files.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"moviments/internal/core"
	"moviments/internal/store"
)

type Store struct {
	mu        sync.Mutex
	refs      map[store.Family][]core.Category
	expenses  []core.ExpenseRecord
	incomes   []core.IncomeRecord
	transfers []core.TransferRecord
}

var _ store.Store = (*Store)(nil)

// New builds a store from reference names per family. Names are deduplicated
// in input order and receive ids "mem:<family>:<n>".
func New(names map[store.Family][]string) *Store {
	s := &Store{refs: make(map[store.Family][]core.Category, len(store.Families))}
	for _, f := range store.Families {
		uniq := dedupe(names[f])
		cats := make([]core.Category, len(uniq))
		for i, n := range uniq {
			cats[i] = core.Category{ID: fmt.Sprintf("mem:%s:%d", f, i+1), Name: n}
		}
		s.refs[f] = cats
	}
	return s
}

// NewFromFiles reads seed_<family>.txt files under base. Families without a
// file fall back to built-in defaults.
func NewFromFiles(base string) *Store {
	defaults := Defaults(time.Now().Year())
	names := make(map[store.Family][]string, len(store.Families))
	for _, f := range store.Families {
		lines := readLines(filepath.Join(base, "seed_"+string(f)+".txt"))
		if len(lines) == 0 {
			lines = defaults[f]
		}
		names[f] = lines
	}
	return New(names)
}

// Defaults returns the built-in reference names, with months of year.
func Defaults(year int) map[store.Family][]string {
	months := make([]string, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, fmt.Sprintf("%s %d", m, year))
	}
	return map[store.Family][]string{
		store.Accounts:     {"Caixa Enginyers", "Revolut"},
		store.ExpenseTypes: {"Gasofa", "Transportation", "Groceries", "Coffee", "Restaurant", "Party", "Health - Gym - Beauty"},
		store.IncomeTypes:  {"Salary", "Transfer"},
		store.Months:       months,
		store.Savings:      {"Savings"},
	}
}

func (s *Store) list(f store.Family) []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.refs[f]...)
}

func (s *Store) ListAccounts(context.Context) ([]core.Category, error) {
	return s.list(store.Accounts), nil
}

func (s *Store) ListExpenseTypes(context.Context) ([]core.Category, error) {
	return s.list(store.ExpenseTypes), nil
}

func (s *Store) ListIncomeTypes(context.Context) ([]core.Category, error) {
	return s.list(store.IncomeTypes), nil
}

func (s *Store) ListMonths(context.Context) ([]core.Category, error) {
	return s.list(store.Months), nil
}

func (s *Store) ListSubscriptions(context.Context) ([]core.Category, error) {
	return s.list(store.Subscriptions), nil
}

func (s *Store) ListDebts(context.Context) ([]core.Category, error) {
	return s.list(store.Debts), nil
}

func (s *Store) ListSavings(context.Context) ([]core.Category, error) {
	return s.list(store.Savings), nil
}

// CreateExpense stores the record and returns a synthetic reference.
func (s *Store) CreateExpense(_ context.Context, r core.ExpenseRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, r)
	return fmt.Sprintf("mem:expense:%d", len(s.expenses)), nil
}

func (s *Store) CreateIncome(_ context.Context, r core.IncomeRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append(s.incomes, r)
	return fmt.Sprintf("mem:income:%d", len(s.incomes)), nil
}

func (s *Store) CreateTransfer(_ context.Context, r core.TransferRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, r)
	return fmt.Sprintf("mem:transfer:%d", len(s.transfers)), nil
}

// Counts reports how many records of each kind were created.
func (s *Store) Counts() (expenses, incomes, transfers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expenses), len(s.incomes), len(s.transfers)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
