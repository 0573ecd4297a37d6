package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Records are the insert-only payloads sent to the record store.
type (
	ExpenseRecord struct {
		Date           Date            `json:"date"`
		Name           string          `json:"name"`
		Concept        string          `json:"concept"`
		Amount         decimal.Decimal `json:"amount"`
		AccountID      string          `json:"account_id,omitempty"`
		ExpenseTypeID  string          `json:"expense_type_id,omitempty"`
		MonthID        string          `json:"month_id,omitempty"`
		SubscriptionID string          `json:"subscription_id,omitempty"`
		DebtID         string          `json:"debt_id,omitempty"`
		Split          bool            `json:"split"`
		Subs           bool            `json:"subs"`
	}

	IncomeRecord struct {
		Date         Date            `json:"date"`
		Name         string          `json:"name"`
		Concept      string          `json:"concept"`
		Amount       decimal.Decimal `json:"amount"`
		AccountID    string          `json:"account_id,omitempty"`
		MonthID      string          `json:"month_id,omitempty"`
		IncomeTypeID string          `json:"income_type_id,omitempty"`
	}

	TransferRecord struct {
		Date          Date            `json:"date"`
		Name          string          `json:"name"`
		Amount        decimal.Decimal `json:"amount"`
		FromAccountID string          `json:"from_account_id,omitempty"`
		FromSavingID  string          `json:"from_saving_id,omitempty"`
		ToAccountID   string          `json:"to_account_id,omitempty"`
		ToSavingID    string          `json:"to_saving_id,omitempty"`
		TransferType  string          `json:"transfer_type,omitempty"`
		MonthID       string          `json:"month_id,omitempty"`
	}
)

func validateRecord(d Date, name string, amount decimal.Decimal) error {
	if d.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidDate)
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount)
	}
	return nil
}

func (r ExpenseRecord) Validate() error  { return validateRecord(r.Date, r.Name, r.Amount) }
func (r IncomeRecord) Validate() error   { return validateRecord(r.Date, r.Name, r.Amount) }
func (r TransferRecord) Validate() error { return validateRecord(r.Date, r.Name, r.Amount) }

// ExpenseRecord converts a reviewed expense into its store payload.
func (t Transaction) ExpenseRecord() (ExpenseRecord, error) {
	d, amt, err := t.dateAndAmount(KindExpense)
	if err != nil {
		return ExpenseRecord{}, err
	}
	r := ExpenseRecord{
		Date:           d,
		Name:           t.displayName(),
		Concept:        t.Concept,
		Amount:         amt,
		AccountID:      t.AccountID,
		ExpenseTypeID:  t.ExpenseTypeID,
		MonthID:        t.MonthID,
		SubscriptionID: t.SubscriptionID,
		DebtID:         t.DebtID,
		Split:          t.Split,
		Subs:           t.Subs,
	}
	return r, r.Validate()
}

func (t Transaction) IncomeRecord() (IncomeRecord, error) {
	d, amt, err := t.dateAndAmount(KindIncome)
	if err != nil {
		return IncomeRecord{}, err
	}
	r := IncomeRecord{
		Date:         d,
		Name:         t.displayName(),
		Concept:      t.Concept,
		Amount:       amt,
		AccountID:    t.AccountID,
		MonthID:      t.MonthID,
		IncomeTypeID: t.IncomeTypeID,
	}
	return r, r.Validate()
}

func (t Transaction) TransferRecord() (TransferRecord, error) {
	d, amt, err := t.dateAndAmount(KindTransfer)
	if err != nil {
		return TransferRecord{}, err
	}
	r := TransferRecord{
		Date:          d,
		Name:          t.displayName(),
		Amount:        amt,
		FromAccountID: t.FromAccountID,
		FromSavingID:  t.FromSavingID,
		ToAccountID:   t.ToAccountID,
		ToSavingID:    t.ToSavingID,
		TransferType:  t.TransferType,
		MonthID:       t.MonthID,
	}
	return r, r.Validate()
}

func (t Transaction) dateAndAmount(want Kind) (Date, decimal.Decimal, error) {
	if t.Type != want {
		return Date{}, decimal.Zero, fmt.Errorf("%w: %q is not %s", ErrUnknownKind, t.Type, want)
	}
	d, err := ParseISODate(t.Date)
	if err != nil {
		return Date{}, decimal.Zero, err
	}
	amt, err := ParseAmount(t.Amount)
	if err != nil {
		return Date{}, decimal.Zero, err
	}
	return d, amt.Abs(), nil
}

// displayName falls back to the concept when the reviewer cleared the name.
func (t Transaction) displayName() string {
	if strings.TrimSpace(t.Name) != "" {
		return t.Name
	}
	return t.Concept
}
