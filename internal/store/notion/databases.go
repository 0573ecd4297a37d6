package notion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Databases holds the Notion database id of each reference family and
// record kind.
type Databases struct {
	Accounts      string
	ExpenseTypes  string
	IncomeTypes   string
	Months        string
	Subscriptions string
	Debts         string
	Savings       string
	Expenses      string
	Incomes       string
	Transfers     string
}

// LoadDatabases reads a database_name,database_id CSV file. Names are
// matched case-insensitively, with or without a _DATABASE_ID suffix.
func LoadDatabases(path string) (Databases, error) {
	f, err := os.Open(path)
	if err != nil {
		return Databases{}, fmt.Errorf("open databases file: %w", err)
	}
	defer f.Close()
	return ParseDatabases(f)
}

func ParseDatabases(r io.Reader) (Databases, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return Databases{}, fmt.Errorf("read databases header: %w", err)
	}
	nameCol, idCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "database_name":
			nameCol = i
		case "database_id":
			idCol = i
		}
	}
	if nameCol < 0 || idCol < 0 {
		return Databases{}, errors.New("databases file needs database_name and database_id columns")
	}

	var db Databases
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Databases{}, fmt.Errorf("read databases file: %w", err)
		}
		if nameCol >= len(rec) || idCol >= len(rec) {
			continue
		}
		if dst := db.field(rec[nameCol]); dst != nil {
			*dst = strings.TrimSpace(rec[idCol])
		}
	}
	return db, nil
}

func (d *Databases) field(name string) *string {
	key := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(name)), "_DATABASE_ID")
	switch key {
	case "ACCOUNTS":
		return &d.Accounts
	case "EXPENSE_TYPES":
		return &d.ExpenseTypes
	case "INCOME_TYPES", "INCOME_TARGET":
		return &d.IncomeTypes
	case "MONTHS":
		return &d.Months
	case "SUBSCRIPTIONS":
		return &d.Subscriptions
	case "DEBTS":
		return &d.Debts
	case "SAVINGS":
		return &d.Savings
	case "EXPENSES":
		return &d.Expenses
	case "INCOMES":
		return &d.Incomes
	case "TRANSFER", "TRANSFERS":
		return &d.Transfers
	}
	return nil
}

// Missing names the record databases that have no id. Reference families
// without an id list as empty instead.
func (d Databases) Missing() []string {
	var out []string
	for name, id := range map[string]string{"EXPENSES": d.Expenses, "INCOMES": d.Incomes, "TRANSFERS": d.Transfers} {
		if id == "" {
			out = append(out, name)
		}
	}
	return out
}
