package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moviments/internal/batch"
	"moviments/internal/classify"
	"moviments/internal/core"
	"moviments/internal/ledger"
	applog "moviments/internal/log"
	"moviments/internal/services"
	"moviments/internal/store"
	"moviments/internal/store/memory"
)

const statement = "DATE,CONCEPT,IMPORT\n" +
	"01/05/2025,TARGETA *9921 CONDIS SUPERMERCAT,\"-15,30\"\n" +
	"03/05/2025,NOMINA EMPRESA SA,1500.00\n" +
	"04/05/2025,BIZUM DE ANNA,20.00\n"

type testEnv struct {
	srv    *Server
	mem    *memory.Store
	ledger *ledger.Ledger
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	t.Cleanup(func() { led.Close() })

	mem := memory.New(memory.Defaults(2025))
	svc := services.NewTransactionService(services.Deps{
		Store:      mem,
		References: store.NewCachedReader(mem, time.Minute),
		Processor:  batch.NewProcessor(classify.New(classify.DefaultRules())),
		Ledger:     led,
	})

	if opts.Logger == nil {
		var buf bytes.Buffer
		cfg := applog.DefaultConfig()
		cfg.Output = &buf
		opts.Logger = applog.New(cfg)
	}
	if opts.Ready == nil {
		opts.Ready = led.Ping
	}
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, mem: mem, ledger: led}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	var body envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func jsonRequest(path string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, contents string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(contents))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/process-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// batchData re-decodes the data field of a process-csv response.
func batchData(t *testing.T, body envelope) core.BatchResult {
	t.Helper()
	raw, _ := json.Marshal(body.Data)
	var res core.BatchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return res
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, path := range []string{"/", "/healthz", "/readyz"} {
		rec, body := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || body.Status != statusSuccess {
			t.Errorf("%s: status=%d body=%+v", path, rec.Code, body)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id", path)
		}
	}
}

func TestReadyzFailure(t *testing.T) {
	env := newTestEnv(t, Options{Ready: func(context.Context) error { return errors.New("db gone") }})
	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || body.Status != statusError {
		t.Errorf("status=%d body=%+v", rec.Code, body)
	}
}

func TestReferenceLists(t *testing.T) {
	env := newTestEnv(t, Options{})
	tests := []struct {
		path string
		want int
	}{
		{"/accounts", 2},
		{"/expense-types", 7},
		{"/income-types", 2},
		{"/months", 12},
		{"/subscriptions", 0},
		{"/debts", 0},
		{"/savings", 1},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := env.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			items, ok := body.Data.([]any)
			if !ok || len(items) != tt.want {
				t.Errorf("data = %#v, want %d items", body.Data, tt.want)
			}
		})
	}
}

func TestCreateRecords(t *testing.T) {
	env := newTestEnv(t, Options{})
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantID   string
	}{
		{
			name:     "expense",
			path:     "/expenses",
			body:     `{"date":"2025-05-01","name":"Condis","concept":"TARGETA CONDIS","amount":"15.30"}`,
			wantCode: http.StatusOK,
			wantID:   "mem:expense:1",
		},
		{
			name:     "income",
			path:     "/incomes",
			body:     `{"date":"2025-05-03","name":"Nomina","concept":"NOMINA","amount":"1500"}`,
			wantCode: http.StatusOK,
			wantID:   "mem:income:1",
		},
		{
			name:     "transfer",
			path:     "/transfers",
			body:     `{"date":"2025-05-04","name":"Anna","amount":"20","transfer_type":"Return"}`,
			wantCode: http.StatusOK,
			wantID:   "mem:transfer:1",
		},
		{name: "bad date", path: "/expenses", body: `{"date":"01/05/2025","name":"x","amount":"1"}`, wantCode: http.StatusBadRequest},
		{name: "empty name", path: "/incomes", body: `{"date":"2025-05-01","name":"","amount":"1"}`, wantCode: http.StatusBadRequest},
		{name: "not json", path: "/transfers", body: `{`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec, body := env.do(t, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", rec.Code, tt.wantCode, body)
			}
			if tt.wantID == "" {
				if body.Status != statusError {
					t.Errorf("status field = %q", body.Status)
				}
				return
			}
			data, _ := body.Data.(map[string]any)
			if data["id"] != tt.wantID {
				t.Errorf("id = %v, want %s", data["id"], tt.wantID)
			}
		})
	}
}

func TestProcessSaveAndMarkFlow(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec, body := env.do(t, uploadRequest(t, "may.csv", statement))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d body=%+v", rec.Code, body)
	}
	res := batchData(t, body)
	if res.Stats.Total != 3 || res.Stats.Emitted != 3 || len(res.Entries) != 3 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if body.Message != "Successfully processed 3 entries" {
		t.Errorf("message = %q", body.Message)
	}

	rec, body = env.do(t, jsonRequest("/save-transaction", res.Entries[0]))
	if rec.Code != http.StatusOK || body.Message != "Expense created successfully" {
		t.Fatalf("save status=%d body=%+v", rec.Code, body)
	}
	if e, _, _ := env.mem.Counts(); e != 1 {
		t.Errorf("expenses stored = %d", e)
	}

	income := res.Entries[1]
	form := url.Values{
		"filename": {"may.csv"},
		"row_id":   {"1"},
		"date":     {"03/05/2025"},
		"concept":  {income.Concept},
		"amount":   {"1500.00"},
	}
	req := httptest.NewRequest(http.MethodPost, "/mark-csv-loaded", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec, body = env.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("mark status=%d body=%+v", rec.Code, body)
	}

	rec, body = env.do(t, uploadRequest(t, "may.csv", statement))
	res = batchData(t, body)
	if res.Stats.AlreadyLoaded != 2 || res.Stats.Emitted != 1 {
		t.Errorf("stats after review = %+v", res.Stats)
	}

	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/may.csv", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("upload status=%d type=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), core.ColumnLoaded) {
		t.Errorf("durable copy has no loaded column:\n%s", rec.Body.String())
	}
}

func TestMarkLoadedErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, uploadRequest(t, "may.csv", statement))

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{name: "missing filename", form: url.Values{"row_id": {"0"}}, want: http.StatusBadRequest},
		{name: "bad row id", form: url.Values{"filename": {"may.csv"}, "row_id": {"x"}}, want: http.StatusBadRequest},
		{name: "row out of range", form: url.Values{"filename": {"may.csv"}, "row_id": {"9"}}, want: http.StatusNotFound},
		{name: "mismatch", form: url.Values{"filename": {"may.csv"}, "row_id": {"0"}, "concept": {"OTHER"}}, want: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mark-csv-loaded", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if rec, body := env.do(t, req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%+v)", rec.Code, tt.want, body)
			}
		})
	}
}

func TestProcessCSVErrors(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 256})

	rec, _ := env.do(t, uploadRequest(t, "bad.csv", "FOO,BAR\n1,2\n"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing columns status = %d", rec.Code)
	}

	rec, _ = env.do(t, uploadRequest(t, "big.csv", "DATE,CONCEPT,IMPORT\n"+strings.Repeat("01/05/2025,TARGETA X,-1\n", 40)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/process-csv", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	if rec, _ = env.do(t, req); rec.Code != http.StatusBadRequest {
		t.Errorf("non multipart status = %d", rec.Code)
	}
}

func TestUploadNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/none.csv", nil))
	if rec.Code != http.StatusNotFound || body.Status != statusError {
		t.Errorf("status=%d body=%+v", rec.Code, body)
	}
}

func TestRefreshReferences(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec, body := env.do(t, httptest.NewRequest(http.MethodPost, "/references/refresh", nil))
	data, _ := body.Data.(map[string]any)
	if rec.Code != http.StatusOK || data["invalidated"] != true {
		t.Errorf("status=%d body=%+v", rec.Code, body)
	}
}

func TestRateLimitAppliesToPostOnly(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 1})

	post := func() int {
		rec, _ := env.do(t, httptest.NewRequest(http.MethodPost, "/references/refresh", nil))
		return rec.Code
	}
	if code := post(); code != http.StatusOK {
		t.Fatalf("first POST = %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("second POST = %d, want 429", code)
	}
	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/accounts", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET after limit = %d", rec.Code)
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	env := newTestEnv(t, Options{})
	if rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil)); rec.Code != http.StatusNotFound || body.Status != statusError {
		t.Errorf("unknown path: %d %+v", rec.Code, body)
	}
	if rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/expenses", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /expenses = %d", rec.Code)
	}
}

type panicService struct{ Service }

func (panicService) RefreshReferences() bool { panic("boom") }

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	cfg := applog.DefaultConfig()
	cfg.Output = &buf
	srv := NewServer(":0", panicService{}, Options{Logger: applog.New(cfg)})
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/references/refresh", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "Handler panic") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotConfigured, http.StatusServiceUnavailable},
		{ledger.ErrNotFound, http.StatusNotFound},
		{batch.ErrRowNotFound, http.StatusNotFound},
		{batch.ErrRowMismatch, http.StatusConflict},
		{core.ErrInvalidAmount, http.StatusBadRequest},
		{batch.ErrMissingColumns, http.StatusBadRequest},
		{errors.New("notion: 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err, http.StatusBadGateway); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCleanFilename(t *testing.T) {
	tests := map[string]string{
		"may.csv":            "may.csv",
		"../../etc/passwd":   "passwd",
		`C:\exports\may.csv`: "may.csv",
		"  ":                 "",
		"..":                 "",
	}
	for in, want := range tests {
		if got := cleanFilename(in); got != want {
			t.Errorf("cleanFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
