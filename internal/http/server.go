// Package http serves the statement review API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"moviments/internal/batch"
	"moviments/internal/core"
	applog "moviments/internal/log"
	"moviments/internal/middleware/ratelimit"
	"moviments/internal/middleware/security"
	"moviments/internal/middleware/trace"
	"moviments/internal/store"
)

// Service is what the handlers need from the transaction service.
type Service interface {
	Process(ctx context.Context, filename string, contents []byte) (core.BatchResult, error)
	Save(ctx context.Context, tx core.Transaction) (string, error)
	MarkLoaded(ctx context.Context, filename string, index int, check batch.RowCheck) error
	Upload(ctx context.Context, filename string) ([]byte, error)
	CreateExpense(ctx context.Context, r core.ExpenseRecord) (string, error)
	CreateIncome(ctx context.Context, r core.IncomeRecord) (string, error)
	CreateTransfer(ctx context.Context, r core.TransferRecord) (string, error)
	References(ctx context.Context, f store.Family) ([]core.Category, error)
	RefreshReferences() bool
}

type Options struct {
	Logger             *applog.Logger
	MaxUploadBytes     int64
	CORSOrigins        []string
	RateLimitPerMinute int
	// TrustProxyHeaders reads client addresses from forwarding headers
	// set by private-network proxies.
	TrustProxyHeaders bool
	// Ready backs /readyz. Nil means always ready.
	Ready func(context.Context) error
}

const maxJSONBytes = 1 << 20

type Server struct {
	http.Server
	svc       Service
	logger    *applog.Logger
	events    *applog.StructuredLogger
	limiter   *ratelimit.Limiter
	maxUpload int64
	ready     func(context.Context) error

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    64 << 10,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		svc:       svc,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		maxUpload: opts.MaxUploadBytes,
		ready:     opts.Ready,
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	for path, family := range referenceRoutes {
		r.HandleFunc(path, s.handleReferences(family)).Methods(http.MethodGet)
	}
	r.HandleFunc("/references/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	r.HandleFunc("/incomes", s.handleCreateIncome).Methods(http.MethodPost)
	r.HandleFunc("/transfers", s.handleCreateTransfer).Methods(http.MethodPost)

	r.HandleFunc("/process-csv", s.handleProcessCSV).Methods(http.MethodPost)
	r.HandleFunc("/save-transaction", s.handleSaveTransaction).Methods(http.MethodPost)
	r.HandleFunc("/mark-csv-loaded", s.handleMarkLoaded).Methods(http.MethodPost)
	r.HandleFunc("/uploads/{filename}", s.handleUpload).Methods(http.MethodGet)

	proxies := security.NewDirectResolver()
	if opts.TrustProxyHeaders {
		proxies = security.NewProxyResolver()
	}
	var h http.Handler = r
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		h = s.limiter.Middleware(proxies.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeFailure(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}, http.MethodPost)(h)
	}
	h = security.CORS(opts.CORSOrigins)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(trace.FromRequest)(h)
	h = applog.Middleware(logger)(h)
	h = s.recoverer(h)
	h = trace.NewMiddleware(s.events, proxies.ClientIP).Middleware(h)
	s.Handler = h

	return s
}

// Shutdown stops the rate limiter and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// recoverer turns a handler panic into a 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				applog.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panic",
					applog.FieldErrorType, applog.ErrorTypeInternal,
					"panic", p,
					applog.FieldPath, r.URL.Path)
				writeFailure(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
