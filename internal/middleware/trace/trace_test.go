package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "moviments/internal/log"
)

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if !strings.HasPrefix(a, "req_") || len(a) != len("req_")+16 {
		t.Errorf("GenerateRequestID() = %q", a)
	}
	if a == b {
		t.Error("request ids should differ")
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	cfg := applog.DefaultConfig()
	cfg.Output = &buf
	cfg.Format = "json"
	logger := applog.NewStructuredLogger(applog.New(cfg))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated", incoming: "", keep: false},
		{name: "propagated", incoming: "abc-123", keep: true},
		{name: "rejected", incoming: "bad id\n", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" }).Middleware(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seen = FromRequest(r)
					w.WriteHeader(http.StatusTeapot)
				}))

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set(Header, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get(Header) != seen || seen == "" {
				t.Errorf("response id %q, handler saw %q", rec.Header().Get(Header), seen)
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("id = %q, want %q", seen, tt.incoming)
			}
			if !tt.keep && !strings.HasPrefix(seen, "req_") {
				t.Errorf("id = %q, want a generated one", seen)
			}
		})
	}

	if !strings.Contains(buf.String(), `"status_code":418`) {
		t.Errorf("completion log missing status: %s", buf.String())
	}
}
