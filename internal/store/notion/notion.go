// Package notion stores records in Notion databases and lists reference
// categories from them.
package notion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jomei/notionapi"

	"moviments/internal/core"
	"moviments/internal/store"
)

const (
	pageSize = 100

	iconExpense  = "https://www.notion.so/icons/arrow-up_red.svg"
	iconIncome   = "https://www.notion.so/icons/arrow-down_green.svg"
	iconTransfer = "https://www.notion.so/icons/arrow-right_blue.svg"
)

// titleProperty names the title column of each reference database.
var titleProperty = map[store.Family]string{
	store.Accounts:      "Account Name",
	store.ExpenseTypes:  "Expense Type",
	store.IncomeTypes:   "Income Type",
	store.Months:        "Month",
	store.Subscriptions: "Name",
	store.Debts:         "Debt",
	store.Savings:       "Name",
}

// Service is the subset of the Notion API the store calls.
type Service interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type apiService struct {
	client *notionapi.Client
}

func (s apiService) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return s.client.Page.Create(ctx, req)
}

func (s apiService) QueryDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return s.client.Database.Query(ctx, id, req)
}

// NewService wraps an API client authenticated with token.
func NewService(token string) Service {
	return apiService{client: notionapi.NewClient(notionapi.Token(token))}
}

type Store struct {
	svc Service
	db  Databases
}

var _ store.Store = (*Store)(nil)

func New(svc Service, db Databases) (*Store, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: nil notion service", store.ErrNotConfigured)
	}
	if missing := db.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing notion databases %s", store.ErrNotConfigured, strings.Join(missing, ", "))
	}
	return &Store{svc: svc, db: db}, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.Accounts, s.db.Accounts)
}

func (s *Store) ListExpenseTypes(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.ExpenseTypes, s.db.ExpenseTypes)
}

func (s *Store) ListIncomeTypes(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.IncomeTypes, s.db.IncomeTypes)
}

func (s *Store) ListMonths(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.Months, s.db.Months)
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.Subscriptions, s.db.Subscriptions)
}

func (s *Store) ListDebts(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.Debts, s.db.Debts)
}

func (s *Store) ListSavings(ctx context.Context) ([]core.Category, error) {
	return s.list(ctx, store.Savings, s.db.Savings)
}

// list reads every page of a reference database. Pages without a title are
// skipped.
func (s *Store) list(ctx context.Context, f store.Family, dbID string) ([]core.Category, error) {
	if dbID == "" {
		return []core.Category{}, nil
	}
	prop := titleProperty[f]
	out := []core.Category{}
	var cursor notionapi.Cursor
	for {
		resp, err := s.svc.QueryDatabase(ctx, notionapi.DatabaseID(dbID), &notionapi.DatabaseQueryRequest{
			PageSize:    pageSize,
			StartCursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", f, err)
		}
		for _, page := range resp.Results {
			name := pageTitle(page, prop)
			if name == "" {
				continue
			}
			out = append(out, core.Category{ID: page.ID.String(), Name: name})
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	slog.DebugContext(ctx, "Listed notion references", "family", f, "count", len(out))
	return out, nil
}

func pageTitle(page notionapi.Page, prop string) string {
	p, ok := page.Properties[prop].(*notionapi.TitleProperty)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, rt := range p.Title {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func (s *Store) CreateExpense(ctx context.Context, r core.ExpenseRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	props := notionapi.Properties{
		"Expense Name": title(r.Name),
		"Date":         date(r.Date),
		"Note":         richText(r.Concept),
		"Amount":       &notionapi.NumberProperty{Number: r.Amount.InexactFloat64()},
		"Split":        &notionapi.CheckboxProperty{Checkbox: r.Split},
		"Subs":         &notionapi.CheckboxProperty{Checkbox: r.Subs},
	}
	relate(props, "Accounts", r.AccountID)
	relate(props, "Expenses Type", r.ExpenseTypeID)
	relate(props, "Month", r.MonthID)
	relate(props, "Subscription", r.SubscriptionID)
	relate(props, "Debts", r.DebtID)
	return s.create(ctx, s.db.Expenses, props, iconExpense)
}

func (s *Store) CreateIncome(ctx context.Context, r core.IncomeRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	props := notionapi.Properties{
		"Income Name": title(r.Name),
		"Date":        date(r.Date),
		"Note":        richText(r.Concept),
		"Amount":      &notionapi.NumberProperty{Number: r.Amount.InexactFloat64()},
	}
	relate(props, "Account", r.AccountID)
	relate(props, "Incomes Type", r.IncomeTypeID)
	relate(props, "Months", r.MonthID)
	return s.create(ctx, s.db.Incomes, props, iconIncome)
}

func (s *Store) CreateTransfer(ctx context.Context, r core.TransferRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	props := notionapi.Properties{
		"Transfer": title(r.Name),
		"Date":     date(r.Date),
		"Amount":   &notionapi.NumberProperty{Number: r.Amount.InexactFloat64()},
	}
	relate(props, "From Acc", r.FromAccountID)
	relate(props, "From Sav", r.FromSavingID)
	relate(props, "To Acc", r.ToAccountID)
	relate(props, "To Sav", r.ToSavingID)
	relate(props, "Month", r.MonthID)
	if r.TransferType != "" {
		props["Transfer Type"] = &notionapi.SelectProperty{Select: notionapi.Option{Name: r.TransferType}}
	}
	return s.create(ctx, s.db.Transfers, props, iconTransfer)
}

func (s *Store) create(ctx context.Context, dbID string, props notionapi.Properties, icon string) (string, error) {
	page, err := s.svc.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
		Icon: &notionapi.Icon{
			Type:     notionapi.FileTypeExternal,
			External: &notionapi.FileObject{URL: icon},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create notion page: %w", err)
	}
	return page.ID.String(), nil
}

func title(s string) *notionapi.TitleProperty {
	return &notionapi.TitleProperty{Title: []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}}
}

func richText(s string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{RichText: []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}}
}

func date(d core.Date) *notionapi.DateProperty {
	nd := notionapi.Date(d.Time)
	return &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &nd}}
}

// relate adds a single-page relation when id is set.
func relate(props notionapi.Properties, name, id string) {
	if id == "" {
		return
	}
	props[name] = &notionapi.RelationProperty{Relation: []notionapi.Relation{{ID: notionapi.PageID(id)}}}
}
