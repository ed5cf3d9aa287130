package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"payday/internal/auth"
	"payday/internal/jobs"
	"payday/internal/store/sqlite"
)

// tokenVerifier accepts "tok-<id>" and maps it to participant <id>.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := strings.CutPrefix(token, "tok-")
	if !ok || id == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return auth.Identity{ID: id, Email: id + "@example.com"}, nil
}

const adminToken = "let-me-in"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := jobs.NewService(store, jobs.DefaultRegistry(), logger,
		jobs.WithRand(jobs.NewRand(3)),
		jobs.WithMetrics(jobs.NewMetrics(registry)),
		jobs.WithStarterBalance(200),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	srv := New(logger, svc, tokenVerifier{},
		WithAdmin(auth.NewAdminCheck(string(hash))),
		WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type call struct {
	method  string
	path    string
	token   string
	body    string
	headers map[string]string
}

func do(t *testing.T, ts *httptest.Server, c call) (int, map[string]any, http.Header) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req, err := http.NewRequest(c.method, ts.URL+c.path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", c.method, c.path, raw, err)
		}
	}
	return resp.StatusCode, out, resp.Header
}

func mustStatus(t *testing.T, got, want int, body map[string]any) {
	t.Helper()
	if got != want {
		t.Fatalf("status=%d want %d body=%v", got, want, body)
	}
}

func TestWorkFlow(t *testing.T) {
	ts := newTestServer(t)

	status, body, _ := do(t, ts, call{method: http.MethodPost, path: "/v1/work"})
	mustStatus(t, status, http.StatusUnauthorized, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice"})
	mustStatus(t, status, http.StatusNotFound, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/register", token: "tok-alice"})
	mustStatus(t, status, http.StatusOK, body)
	if body["username"] != "alice" || body["balance"].(float64) != 200 {
		t.Fatalf("participant=%v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice"})
	mustStatus(t, status, http.StatusConflict, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/job", token: "tok-alice", body: `{"profession":"chef"}`})
	mustStatus(t, status, http.StatusOK, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/job", token: "tok-alice", body: `{"profession":"lawyer"}`})
	mustStatus(t, status, http.StatusConflict, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice", headers: map[string]string{"Idempotency-Key": "w-1"}})
	mustStatus(t, status, http.StatusOK, body)
	earned := body["earned"].(float64)
	if body["kind"] != string(jobs.OutcomeEarned) || earned < 10 || earned > 20 {
		t.Fatalf("outcome=%v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice", headers: map[string]string{"Idempotency-Key": "w-1"}})
	mustStatus(t, status, http.StatusConflict, body)

	status, body, header := do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice"})
	mustStatus(t, status, http.StatusTooManyRequests, body)
	retry := body["retry_after_seconds"].(float64)
	if retry <= 3500 || retry > 3600 || header.Get("Retry-After") == "" {
		t.Fatalf("retry=%v header=%q", retry, header.Get("Retry-After"))
	}

	status, body, _ = do(t, ts, call{method: http.MethodGet, path: "/v1/job", token: "tok-alice"})
	mustStatus(t, status, http.StatusOK, body)
	if body["times_worked"].(float64) != 1 || body["remaining_seconds"].(float64) <= 0 || body["cooldown_seconds"].(float64) != 3600 {
		t.Fatalf("status=%v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodDelete, path: "/v1/admin/cooldowns/alice/work"})
	mustStatus(t, status, http.StatusForbidden, body)

	status, body, _ = do(t, ts, call{method: http.MethodDelete, path: "/v1/admin/cooldowns/alice/work", headers: map[string]string{"X-Admin-Token": adminToken}})
	mustStatus(t, status, http.StatusOK, body)
	if body["cleared"] != true {
		t.Fatalf("reset=%v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-alice"})
	mustStatus(t, status, http.StatusOK, body)

	status, body, _ = do(t, ts, call{method: http.MethodDelete, path: "/v1/job", token: "tok-alice"})
	mustStatus(t, status, http.StatusOK, body)
	status, body, _ = do(t, ts, call{method: http.MethodGet, path: "/v1/job", token: "tok-alice"})
	mustStatus(t, status, http.StatusConflict, body)
}

func TestFineFlow(t *testing.T) {
	ts := newTestServer(t)
	for _, who := range []string{"cop", "vic", "chef"} {
		status, body, _ := do(t, ts, call{method: http.MethodPost, path: "/v1/register", token: "tok-" + who})
		mustStatus(t, status, http.StatusOK, body)
	}
	for who, profession := range map[string]string{"cop": "interpol", "vic": "chef", "chef": "chef"} {
		status, body, _ := do(t, ts, call{method: http.MethodPost, path: "/v1/job", token: "tok-" + who, body: fmt.Sprintf(`{"profession":%q}`, profession)})
		mustStatus(t, status, http.StatusOK, body)
	}

	status, body, _ := do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-chef", body: `{"target":"vic"}`})
	mustStatus(t, status, http.StatusForbidden, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-cop", body: `{"target":"cop"}`})
	mustStatus(t, status, http.StatusBadRequest, body)

	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-cop", body: `{"target":"@vic"}`})
	mustStatus(t, status, http.StatusOK, body)
	fine := body["fine"].(map[string]any)
	if body["kind"] != string(jobs.OutcomeFined) || fine["victim"] != "vic" || fine["bonus"].(float64) != 0 {
		t.Fatalf("outcome=%v", body)
	}
	total := fine["total"].(float64)
	if fine["victim_balance"].(float64) != 200-total || body["balance"].(float64) != 200+total {
		t.Fatalf("balances after fine: %v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodGet, path: "/v1/fines/stats", token: "tok-cop"})
	mustStatus(t, status, http.StatusOK, body)
	if body["count"].(float64) != 1 || body["total_fined"].(float64) != total {
		t.Fatalf("stats=%v", body)
	}

	status, body, _ = do(t, ts, call{method: http.MethodGet, path: "/v1/admin/fines/stats?since=yesterday", headers: map[string]string{"X-Admin-Token": adminToken}})
	mustStatus(t, status, http.StatusBadRequest, body)

	status, body, _ = do(t, ts, call{method: http.MethodPut, path: "/v1/admin/participants/vic/ban", body: `{"banned":true}`, headers: map[string]string{"X-Admin-Token": adminToken}})
	mustStatus(t, status, http.StatusOK, body)
	status, body, _ = do(t, ts, call{method: http.MethodPost, path: "/v1/work", token: "tok-vic"})
	mustStatus(t, status, http.StatusForbidden, body)
}

func TestProfessionsAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	status, body, _ := do(t, ts, call{method: http.MethodGet, path: "/v1/professions"})
	mustStatus(t, status, http.StatusOK, body)
	list := body["professions"].([]any)
	if len(list) != len(jobs.DefaultDescriptors()) {
		t.Fatalf("professions=%d", len(list))
	}

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&jobs.CooldownError{Key: jobs.WorkKey("p"), Remaining: 90 * time.Second}, http.StatusTooManyRequests},
		{jobs.ErrDuplicateIdempotency, http.StatusConflict},
		{jobs.ErrNotRegistered, http.StatusNotFound},
		{jobs.ErrBanned, http.StatusForbidden},
		{jobs.ErrNotAuthorized, http.StatusForbidden},
		{jobs.ErrNoJob, http.StatusConflict},
		{jobs.ErrAlreadyEmployed, http.StatusConflict},
		{jobs.ErrUnknownProfession, http.StatusBadRequest},
		{jobs.ErrInvalidTarget, http.StatusBadRequest},
		{jobs.ErrTargetIneligible, http.StatusUnprocessableEntity},
		{jobs.ErrTargetProtected, http.StatusUnprocessableEntity},
		{jobs.ErrInsufficientVictimFunds, http.StatusUnprocessableEntity},
		{jobs.ErrTxConflict, http.StatusServiceUnavailable},
		{jobs.ErrLedgerUnavailable, http.StatusServiceUnavailable},
		{jobs.ErrInsufficientFunds, http.StatusServiceUnavailable},
		{&jobs.ConfigError{Profession: "chef", Level: 11, Reason: "missing level"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, fmt.Errorf("work: %w", tc.err))
		if rec.Code != tc.want {
			t.Fatalf("%v: status=%d want %d", tc.err, rec.Code, tc.want)
		}
	}

	rec := httptest.NewRecorder()
	writeDomainError(rec, &jobs.CooldownError{Key: jobs.FineKey("a", "b"), Remaining: 1500 * time.Millisecond})
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("retry-after=%q", rec.Header().Get("Retry-After"))
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearerabc":    "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q)=%q want %q", in, got, want)
		}
	}
}
