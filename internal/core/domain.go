package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the top-level transaction type.
type Kind string

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindTransfer Kind = "transfer"
)

// CSV column names of a bank statement export.
const (
	ColumnDate    = "DATE"
	ColumnConcept = "CONCEPT"
	ColumnAmount  = "IMPORT"
	ColumnLoaded  = "LOADED"
)

// TransferTypeReturn tags incoming transfers (returns, bizums received).
const TransferTypeReturn = "Return"

type (
	// Row is one statement record keyed by header name.
	Row map[string]string

	// Category is a reference value owned by the record store.
	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Bundle is a read-only snapshot of every reference family, taken once
	// per batch.
	Bundle struct {
		Accounts      []Category
		ExpenseTypes  []Category
		IncomeTypes   []Category
		Months        []Category
		Subscriptions []Category
		Debts         []Category
		Savings       []Category
	}

	// Transaction is a classified statement row awaiting review.
	Transaction struct {
		Type      Kind   `json:"type"`
		Date      string `json:"date"`
		Amount    string `json:"amount"`
		Concept   string `json:"concept"`
		MonthID   string `json:"month_id,omitempty"`
		AccountID string `json:"account_id,omitempty"`
		Name      string `json:"name"`

		// Source fields point at the statement row; a transaction entered
		// by hand has no SourceFilename.
		SourceFilename string `json:"original_csv_filename,omitempty"`
		SourceRowIndex int    `json:"csv_row_index"`

		ExpenseTypeID  string `json:"expense_type_id,omitempty"`
		SubscriptionID string `json:"subscription_id,omitempty"`
		DebtID         string `json:"debt_id,omitempty"`
		Split          bool   `json:"split"`
		Subs           bool   `json:"subs"`

		IncomeTypeID string `json:"income_type_id,omitempty"`

		FromAccountID string `json:"from_account_id,omitempty"`
		FromSavingID  string `json:"from_saving_id,omitempty"`
		ToAccountID   string `json:"to_account_id,omitempty"`
		ToSavingID    string `json:"to_saving_id,omitempty"`
		TransferType  string `json:"transfer_type,omitempty"`
	}

	Stats struct {
		Total         int `json:"total_rows_in_csv"`
		Emitted       int `json:"processed_for_review"`
		AlreadyLoaded int `json:"already_loaded_in_csv"`
		Expenses      int `json:"expenses_found"`
		Incomes       int `json:"incomes_found"`
		Transfers     int `json:"transfers_found"`
		Unrecognized  int `json:"unknown_type"`
	}

	BatchResult struct {
		Entries []Transaction `json:"entries"`
		Stats   Stats         `json:"stats"`
	}
)

var (
	ErrUnknownKind   = errors.New("unknown transaction kind")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyName     = errors.New("empty name")
)

// ParseKind accepts a kind name in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindTransfer:
		return true
	}
	return false
}

// Count records one emitted transaction of kind k.
func (s *Stats) Count(k Kind) {
	s.Emitted++
	switch k {
	case KindExpense:
		s.Expenses++
	case KindIncome:
		s.Incomes++
	case KindTransfer:
		s.Transfers++
	}
}

// Balanced reports whether every row seen is accounted for exactly once.
func (s Stats) Balanced() bool {
	return s.Total == s.AlreadyLoaded+s.Emitted+s.Unrecognized &&
		s.Emitted == s.Expenses+s.Incomes+s.Transfers
}

// Validate checks a reviewed transaction before it is turned into a record.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, t.Type)
	}
	if _, err := ParseISODate(t.Date); err != nil {
		return err
	}
	amt, err := ParseAmount(t.Amount)
	if err != nil {
		return err
	}
	if amt.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, t.Amount)
	}
	return nil
}
