// Package backend builds the record store and the services around it from
// configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"moviments/internal/amqp"
	"moviments/internal/batch"
	"moviments/internal/cache"
	"moviments/internal/classify"
	"moviments/internal/config"
	"moviments/internal/ledger"
	"moviments/internal/services"
	"moviments/internal/store"
	"moviments/internal/store/memory"
	"moviments/internal/store/notion"
	"moviments/internal/store/sheets"
)

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateStore opens the record store selected by DATA_BACKEND.
func (f *Factory) CreateStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DataBackend {
	case config.BackendMemory:
		s := memory.NewFromFiles(cfg.SeedDir)
		f.logger.Info("Initialized memory backend", "seed_dir", cfg.SeedDir)
		return s, nil
	case config.BackendNotion:
		token, err := cfg.NotionAPIToken()
		if err != nil {
			return nil, err
		}
		dbs, err := notion.LoadDatabases(cfg.NotionDatabasesFile)
		if err != nil {
			return nil, err
		}
		s, err := notion.New(notion.NewService(token), dbs)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Initialized Notion backend", "databases_file", cfg.NotionDatabasesFile)
		return s, nil
	case config.BackendSheets:
		s, err := sheets.NewFromEnv(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets backend")
		return s, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
}

// LoadClassifier reads the keyword tables and applies DEFAULT_ACCOUNT.
func LoadClassifier(cfg *config.Config) (*classify.Classifier, error) {
	rules, err := classify.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultAccount != "" {
		rules.DefaultAccount = cfg.DefaultAccount
	}
	return classify.New(rules), nil
}

// Result is a fully wired application.
type Result struct {
	Service    *services.TransactionService
	Store      store.Store
	References *store.CachedReader
	Ledger     *ledger.Ledger
	Queue      *amqp.Client
	Caches     *cache.Manager

	cron *cron.Cron
}

// ScheduleReferenceRefresh re-reads every reference list on the cron spec.
// An empty spec schedules nothing.
func (r *Result) ScheduleReferenceRefresh(ctx context.Context, spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := r.References.Refresh(ctx); err != nil {
			slog.ErrorContext(ctx, "Reference refresh failed", "error", err)
			return
		}
		slog.InfoContext(ctx, "Reference lists refreshed")
	}); err != nil {
		return fmt.Errorf("schedule reference refresh %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Cleanup stops background jobs and closes the ledger and the queue.
func (r *Result) Cleanup() error {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	if r.Caches != nil {
		r.Caches.Stop()
	}
	return r.Service.Close()
}

// Build wires store, cache, ledger, queue and service. A broker that cannot
// be reached is logged and records are then created synchronously.
func (f *Factory) Build(ctx context.Context, cfg *config.Config) (*Result, error) {
	st, err := f.CreateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := LoadClassifier(cfg)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	res := &Result{
		Store:      st,
		References: store.NewCachedReader(st, cfg.ReferenceCacheTTL),
		Ledger:     led,
		Caches:     cache.NewManager(),
	}
	res.Caches.Register(res.References.Cache())

	deps := services.Deps{
		Store:      st,
		References: res.References,
		Processor:  batch.NewProcessor(classifier),
		Ledger:     led,
	}
	if cfg.QueueEnabled() {
		q, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, creating records synchronously", "error", err)
		} else {
			res.Queue = q
			deps.Publisher = q
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	res.Service = services.NewTransactionService(deps)

	f.logger.Info("Backend ready",
		"backend", cfg.DataBackend,
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", res.Queue != nil)
	return res, nil
}

// ErrQueueRequired is returned when the worker runs without a broker.
var ErrQueueRequired = errors.New("AMQP_URL is required")
