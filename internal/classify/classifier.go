// Package classify turns bank statement rows into reviewable transactions.
//
// A row is routed by the first matching entry of an ordered rule list;
// categories are then resolved from static keyword tables against the
// reference snapshot of the batch.
package classify

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"moviments/internal/core"
)

var cardPurchase = regexp.MustCompile(`^TARGETA \*\d+ (.*)`)

const (
	bizumOutPrefix = "BIZUM A: "
	bizumInPrefix  = "BIZUM DE: "
)

// statementRow is a row whose required fields parsed.
type statementRow struct {
	date    string
	day     core.Date
	concept string
	amount  decimal.Decimal
}

// rule is one step of the decision procedure. Rules are evaluated top to
// bottom and the first match builds the transaction.
type rule struct {
	name  string
	match func(r statementRow) bool
	apply func(c *Classifier, r statementRow, refs core.Bundle, tx *core.Transaction)
}

var decisionRules = []rule{
	{
		name: "card-bizum-receipt-expense",
		match: func(r statementRow) bool {
			return r.amount.IsNegative() && hasAnyPrefix(r.concept, "TARGETA", "BIZUM A", "R")
		},
		apply: func(c *Classifier, r statementRow, refs core.Bundle, tx *core.Transaction) {
			tx.Type = core.KindExpense
			tx.Name = expenseName(r.concept)
			tx.ExpenseTypeID = ResolveCategory(r.concept, c.rules.Expense, refs.ExpenseTypes)
		},
	},
	{
		name: "payroll-income",
		match: func(r statementRow) bool {
			return r.amount.IsPositive() && hasAnyPrefix(r.concept, "TRASPAS", "NOMINA")
		},
		apply: func(c *Classifier, r statementRow, refs core.Bundle, tx *core.Transaction) {
			tx.Type = core.KindIncome
			tx.Name = r.concept
			tx.IncomeTypeID = ResolveCategory(r.concept, c.rules.Income, refs.IncomeTypes)
		},
	},
	{
		name: "incoming-transfer",
		match: func(r statementRow) bool {
			return r.amount.IsPositive() && hasAnyPrefix(r.concept, "BIZUM DE", "INGRES")
		},
		apply: func(_ *Classifier, r statementRow, _ core.Bundle, tx *core.Transaction) {
			tx.Type = core.KindTransfer
			tx.Name = r.concept
			if rest, ok := strings.CutPrefix(r.concept, bizumInPrefix); ok && rest != "" {
				tx.Name = rest
			}
			tx.ToAccountID = tx.AccountID
			tx.TransferType = core.TransferTypeReturn
		},
	},
	{
		name:  "fallback-by-sign",
		match: func(statementRow) bool { return true },
		apply: func(_ *Classifier, r statementRow, _ core.Bundle, tx *core.Transaction) {
			tx.Name = r.concept
			if r.amount.IsNegative() {
				tx.Type = core.KindExpense
				return
			}
			tx.Type = core.KindIncome
		},
	},
}

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	rules Rules
}

func New(rules Rules) *Classifier {
	rules.Expense = rules.Expense.normalized()
	rules.Income = rules.Income.normalized()
	if strings.TrimSpace(rules.DefaultAccount) == "" {
		rules.DefaultAccount = DefaultAccountName
	}
	return &Classifier{rules: rules}
}

func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify builds the transaction for one row, or returns nil when the row
// lacks DATE, CONCEPT or IMPORT, or when its date or amount do not parse.
func (c *Classifier) Classify(row core.Row, index int, refs core.Bundle, filename string) *core.Transaction {
	r, ok := parseRow(row)
	if !ok {
		return nil
	}
	tx := &core.Transaction{
		Date:           r.day.ISO(),
		Amount:         core.FormatMagnitude(r.amount),
		Concept:        r.concept,
		MonthID:        ResolveMonth(r.date, refs.Months),
		AccountID:      DefaultAccount(refs.Accounts, c.rules.DefaultAccount),
		SourceFilename: filename,
		SourceRowIndex: index,
	}
	for _, rl := range decisionRules {
		if rl.match(r) {
			rl.apply(c, r, refs, tx)
			return tx
		}
	}
	return nil
}

// RuleFor names the rule that would route row, or "" if the row is skipped.
func (c *Classifier) RuleFor(row core.Row) string {
	r, ok := parseRow(row)
	if !ok {
		return ""
	}
	for _, rl := range decisionRules {
		if rl.match(r) {
			return rl.name
		}
	}
	return ""
}

func parseRow(row core.Row) (statementRow, bool) {
	date, okDate := row[core.ColumnDate]
	concept, okConcept := row[core.ColumnConcept]
	raw, okAmount := row[core.ColumnAmount]
	if !okDate || !okConcept || !okAmount {
		return statementRow{}, false
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return statementRow{}, false
	}
	day, err := core.ParseStatementDate(date)
	if err != nil {
		return statementRow{}, false
	}
	return statementRow{date: date, day: day, concept: concept, amount: amount}, true
}

func expenseName(concept string) string {
	var name string
	switch {
	case strings.HasPrefix(concept, "TARGETA"):
		if m := cardPurchase.FindStringSubmatch(concept); m != nil {
			name = m[1]
		}
	case strings.HasPrefix(concept, "BIZUM A"):
		name, _ = strings.CutPrefix(concept, bizumOutPrefix)
		if name == concept {
			name = ""
		}
	}
	if name == "" {
		return concept
	}
	return name
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
