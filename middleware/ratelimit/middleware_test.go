package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobboard-gateway/middleware/ratelimit/application"
	"jobboard-gateway/middleware/ratelimit/domain"
	"jobboard-gateway/middleware/ratelimit/infra"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func testService(quotas domain.QuotaTable) application.Service {
	return application.Service{
		Repo:   infra.NewMemoryRepository(),
		Quotas: quotas,
		Locker: infra.NewStripedLocker(16),
		Now:    func() time.Time { return fixedNow },
	}
}

func TestMiddleware_AllowsThenRejectsSameIdentifier(t *testing.T) {
	svc := testService(domain.QuotaTable{
		domain.EndpointCreateJob: {MaxRequests: 1, Window: time.Minute},
	})

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Service:             svc,
		Endpoint:            domain.EndpointCreateJob,
		AddRateLimitHeaders: true,
	})(next)

	// 1) primeira passa
	r1 := httptest.NewRequest(http.MethodPost, "http://example/api/jobs", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected X-RateLimit-Limit 1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining 0, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Reset"); got != "1700000060" {
		t.Fatalf("expected X-RateLimit-Reset 1700000060, got %q", got)
	}

	// 2) segunda deve bloquear (maxRequests=1)
	r2 := httptest.NewRequest(http.MethodPost, "http://example/api/jobs", nil)
	r2.RemoteAddr = "10.0.0.1:1234"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}

	var body map[string]any
	if err := json.NewDecoder(w2.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != domain.CodeRateLimitExceeded {
		t.Fatalf("expected code %s, got %v", domain.CodeRateLimitExceeded, body["code"])
	}
	if body["message"] != "Rate limit exceeded for createJob. Try again in 60 seconds." {
		t.Fatalf("unexpected message %v", body["message"])
	}
	if body["endpoint"] != domain.EndpointCreateJob || body["remaining"] != float64(0) || body["resetTime"] != float64(1_700_000_060_000) {
		t.Fatalf("unexpected body %v", body)
	}

	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
}

func TestMiddleware_OverrideHeaderSeparatesClients(t *testing.T) {
	svc := testService(domain.QuotaTable{
		domain.EndpointGeneralQuery: {MaxRequests: 1, Window: time.Minute},
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Service:        svc,
		OverrideHeader: "X-Client-Id",
	})(next)

	// mesmo IP, instâncias diferentes => cada uma tem seu contador
	for _, client := range []string{"a", "b"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-Client-Id", client)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for client %s, got %d", client, w.Code)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client-Id", "a")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected client a to be limited, got %d", w.Code)
	}
}

func TestMiddleware_EndpointFromRouteTable(t *testing.T) {
	svc := testService(domain.QuotaTable{
		domain.EndpointCreateJob:    {MaxRequests: 1, Window: time.Minute},
		domain.EndpointGeneralQuery: {MaxRequests: 5, Window: time.Minute},
	})
	h := Middleware(Options{
		Service:    svc,
		EndpointFn: DefaultRoutes().Endpoint,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(method string) int {
		r := httptest.NewRequest(method, "http://example/api/jobs", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	if code := do(http.MethodPost); code != http.StatusOK {
		t.Fatalf("expected first POST 200, got %d", code)
	}
	if code := do(http.MethodPost); code != http.StatusTooManyRequests {
		t.Fatalf("expected second POST 429, got %d", code)
	}
	// GET cai em generalQuery, contador separado
	if code := do(http.MethodGet); code != http.StatusOK {
		t.Fatalf("expected GET 200, got %d", code)
	}
}

type brokenRepo struct{}

func (brokenRepo) Find(context.Context, domain.Key) (*domain.Record, error) {
	return nil, errors.New("connection refused")
}
func (brokenRepo) Insert(context.Context, domain.Record) error {
	return errors.New("connection refused")
}
func (brokenRepo) Update(context.Context, domain.Record) error {
	return errors.New("connection refused")
}
func (brokenRepo) ListByIdentifier(context.Context, string) ([]domain.Record, error) {
	return nil, errors.New("connection refused")
}
func (brokenRepo) DeleteStale(context.Context, int64) (int, error) {
	return 0, errors.New("connection refused")
}

func TestMiddleware_StoreFailure(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	open := Middleware(Options{Service: application.Service{Repo: brokenRepo{}}})(next)
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected fail-open to reach handler, got %d", w.Code)
	}

	closed := Middleware(Options{Service: application.Service{Repo: brokenRepo{}, FailurePolicy: domain.FailClosed}})(next)
	w = httptest.NewRecorder()
	closed.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with fail-closed, got %d", w.Code)
	}
}
