package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"moviments/internal/core"
)

func TestResolveCategory(t *testing.T) {
	refs := []core.Category{
		{ID: "g", Name: "GROCERIES"},
		{ID: "r", Name: "Restaurant"},
	}
	tests := []struct {
		text string
		want string
	}{
		{"TARGETA *1 CONDIS", "g"},
		{"Frankfurt del Centre", "r"},
		{"bar condis", "g"},      // condis precedes bar in the table
		{"MONEYNET COFFEE", ""},  // Coffee is not a reference category
		{"nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ResolveCategory(tt.text, DefaultExpenseKeywords(), refs)
			if got != tt.want {
				t.Errorf("ResolveCategory(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolveCategory_SkipsMissingCategory(t *testing.T) {
	refs := []core.Category{{ID: "r", Name: "Restaurant"}}
	// "moneynet" maps to Coffee which is absent; "bar" still resolves.
	if got := ResolveCategory("MONEYNET BAR", DefaultExpenseKeywords(), refs); got != "r" {
		t.Errorf("got %q, want r", got)
	}
}

func TestResolveMonth(t *testing.T) {
	months := []core.Category{
		{ID: "may-24", Name: "May 2024"},
		{ID: "may-25", Name: "May 2025"},
		{ID: "june", Name: "June"},
	}
	tests := []struct {
		date string
		want string
	}{
		{"01/05/2025", "may-25"},
		{"31/05/2024", "may-24"},
		{"15/06/2030", "june"},
		{"15/07/2025", ""},
		{"not a date", ""},
		{"2025-05-01", ""},
	}
	for _, tt := range tests {
		if got := ResolveMonth(tt.date, months); got != tt.want {
			t.Errorf("ResolveMonth(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestDefaultAccount(t *testing.T) {
	accounts := []core.Category{{ID: "a", Name: "Revolut"}, {ID: "b", Name: "Caixa Enginyers"}}
	if got := DefaultAccount(accounts, DefaultAccountName); got != "b" {
		t.Errorf("preferred account: got %q", got)
	}
	if got := DefaultAccount(accounts, "caixa enginyers"); got != "a" {
		t.Errorf("name match is exact, got %q", got)
	}
	if got := DefaultAccount(nil, DefaultAccountName); got != "" {
		t.Errorf("no accounts: got %q", got)
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules(\"\") error = %v", err)
	}
	if len(rules.Expense) != 9 || len(rules.Income) != 2 || rules.DefaultAccount != DefaultAccountName {
		t.Fatalf("unexpected defaults: %+v", rules)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := `
expense:
  - keyword: Mercadona
    category: Groceries
default_account: Revolut
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err = LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules.Expense) != 1 || rules.Expense[0].Keyword != "mercadona" {
		t.Errorf("expense table = %+v", rules.Expense)
	}
	if len(rules.Income) != 2 {
		t.Errorf("income table should keep defaults, got %+v", rules.Income)
	}
	if rules.DefaultAccount != "Revolut" {
		t.Errorf("default account = %q", rules.DefaultAccount)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "expense: [",
		"empty keyword": "income:\n  - keyword: \"\"\n    category: Salary\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRules([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
	_, err := ParseRules([]byte("income:\n  - keyword: x\n    category: \"\"\n"))
	if err == nil || !strings.Contains(err.Error(), "income rule 0: empty category") {
		t.Errorf("unexpected error: %v", err)
	}
}
