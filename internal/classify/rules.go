package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAccountName is the preferred account for rows of the statement.
const DefaultAccountName = "Caixa Enginyers"

// KeywordRule maps a lower-case substring of a concept to a category name.
type KeywordRule struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// KeywordTable is evaluated in order; the first matching keyword decides.
type KeywordTable []KeywordRule

// Rules is the static configuration of the classifier.
type Rules struct {
	Expense        KeywordTable `yaml:"expense"`
	Income         KeywordTable `yaml:"income"`
	DefaultAccount string       `yaml:"default_account"`
}

func DefaultExpenseKeywords() KeywordTable {
	return KeywordTable{
		{"rally", "Gasofa"},
		{"trenes", "Transportation"},
		{"condis", "Groceries"},
		{"moneynet", "Coffee"},
		{"frankfurt", "Restaurant"},
		{"jimman", "Party"},
		{"aramark", "Coffee"},
		{"bar", "Restaurant"},
		{"saf", "Health - Gym - Beauty"},
	}
}

func DefaultIncomeKeywords() KeywordTable {
	return KeywordTable{
		{"nomina", "Salary"},
		{"traspas", "Transfer"},
	}
}

func DefaultRules() Rules {
	return Rules{
		Expense:        DefaultExpenseKeywords(),
		Income:         DefaultIncomeKeywords(),
		DefaultAccount: DefaultAccountName,
	}
}

// LoadRules reads keyword tables from a YAML file. Sections left out of the
// file keep their defaults; an empty path returns DefaultRules.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rules document over the defaults.
func ParseRules(data []byte) (Rules, error) {
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	rules := DefaultRules()
	if file.Expense != nil {
		rules.Expense = file.Expense.normalized()
	}
	if file.Income != nil {
		rules.Income = file.Income.normalized()
	}
	if s := strings.TrimSpace(file.DefaultAccount); s != "" {
		rules.DefaultAccount = s
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	var problems []string
	tables := []struct {
		name  string
		table KeywordTable
	}{{"expense", r.Expense}, {"income", r.Income}}
	for _, t := range tables {
		name := t.name
		for i, rule := range t.table {
			if rule.Keyword == "" {
				problems = append(problems, fmt.Sprintf("%s rule %d: empty keyword", name, i))
			}
			if strings.TrimSpace(rule.Category) == "" {
				problems = append(problems, fmt.Sprintf("%s rule %d: empty category", name, i))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid rules:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Keywords are matched against lower-cased text.
func (t KeywordTable) normalized() KeywordTable {
	out := make(KeywordTable, len(t))
	for i, r := range t {
		out[i] = KeywordRule{Keyword: strings.ToLower(strings.TrimSpace(r.Keyword)), Category: strings.TrimSpace(r.Category)}
	}
	return out
}
