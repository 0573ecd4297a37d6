// Package sheets keeps reference lists and records in a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"moviments/internal/core"
	"moviments/internal/store"
)

// Tabs names the reference tab of each family.
var Tabs = map[store.Family]string{
	store.Accounts:      "Accounts",
	store.ExpenseTypes:  "ExpenseTypes",
	store.IncomeTypes:   "IncomeTypes",
	store.Months:        "Months",
	store.Subscriptions: "Subscriptions",
	store.Debts:         "Debts",
	store.Savings:       "Savings",
}

const (
	expensesTab  = "Expenses"
	incomesTab   = "Incomes"
	transfersTab = "Transfers"
)

// Values reads and writes cell ranges of one spreadsheet.
type Values interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, rows [][]any) error
}

type apiValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (v apiValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v apiValues) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(v.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

type Client struct {
	values Values

	mu    sync.Mutex
	names map[string]string // reference id -> display name
}

var _ store.Store = (*Client)(nil)

func New(values Values) *Client {
	return &Client{values: values, names: map[string]string{}}
}

// NewFromEnv builds a client for spreadsheetID using service account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("%w: missing GOOGLE_SPREADSHEET_ID", store.ErrNotConfigured)
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return New(apiValues{svc: svc, spreadsheetID: spreadsheetID}), nil
}

func credentialsFromEnv() ([]byte, error) {
	if js := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, fmt.Errorf("%w: missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)", store.ErrNotConfigured)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) ListAccounts(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.Accounts)
}

func (c *Client) ListExpenseTypes(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.ExpenseTypes)
}

func (c *Client) ListIncomeTypes(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.IncomeTypes)
}

func (c *Client) ListMonths(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.Months)
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.Subscriptions)
}

func (c *Client) ListDebts(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.Debts)
}

func (c *Client) ListSavings(ctx context.Context) ([]core.Category, error) {
	return c.list(ctx, store.Savings)
}

// list reads column A of the family tab below its header row. Blank cells,
// '#' comments and repeated names are skipped.
func (c *Client) list(ctx context.Context, f store.Family) ([]core.Category, error) {
	tab := Tabs[f]
	rng := fmt.Sprintf("%s!A2:A", tab)
	rows, err := c.values.Get(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := []core.Category{}
	seen := map[string]struct{}{}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(fmt.Sprint(row[0]))
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		id := fmt.Sprintf("%s!A%d", tab, i+2)
		c.names[id] = name
		out = append(out, core.Category{ID: id, Name: name})
	}
	return out, nil
}

// name resolves a reference id to the name last listed for it.
func (c *Client) name(id string) string {
	if id == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.names[id]; ok {
		return n
	}
	return id
}

func (c *Client) CreateExpense(ctx context.Context, r core.ExpenseRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	return c.append(ctx, expensesTab, []any{
		r.Date.ISO(), r.Name, r.Concept, r.Amount.InexactFloat64(),
		c.name(r.AccountID), c.name(r.ExpenseTypeID), c.name(r.MonthID),
		c.name(r.SubscriptionID), c.name(r.DebtID), r.Split, r.Subs,
	})
}

func (c *Client) CreateIncome(ctx context.Context, r core.IncomeRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	return c.append(ctx, incomesTab, []any{
		r.Date.ISO(), r.Name, r.Concept, r.Amount.InexactFloat64(),
		c.name(r.AccountID), c.name(r.IncomeTypeID), c.name(r.MonthID),
	})
}

func (c *Client) CreateTransfer(ctx context.Context, r core.TransferRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	return c.append(ctx, transfersTab, []any{
		r.Date.ISO(), r.Name, r.Amount.InexactFloat64(),
		c.name(r.FromAccountID), c.name(r.FromSavingID),
		c.name(r.ToAccountID), c.name(r.ToSavingID),
		r.TransferType, c.name(r.MonthID),
	})
}

// append writes row below the last filled cell of column A and returns the
// written range.
func (c *Client) append(ctx context.Context, tab string, row []any) (string, error) {
	if c.values == nil {
		return "", errors.New("sheets service not initialized")
	}
	existing, err := c.values.Get(ctx, tab+"!A:A")
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", tab, err)
	}
	next := len(existing) + 1
	rng := fmt.Sprintf("%s!A%d:%s%d", tab, next, column(len(row)), next)
	if err := c.values.Update(ctx, rng, [][]any{row}); err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return rng, nil
}

// column returns the letter of the n-th column, n <= 26.
func column(n int) string {
	return string(rune('A' + n - 1))
}
