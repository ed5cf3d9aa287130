package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWorkSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"fined","actor":"cop","level":2,"fine":{"victim":"vic","fine":15,"bonus":7,"total":22}}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL).Work(context.Background(), "tok", "@vic", "idem-1")
	if err != nil {
		t.Fatalf("work: %v", err)
	}
	if gotKey != "idem-1" || gotAuth != "Bearer tok" || gotBody["target"] != "@vic" {
		t.Fatalf("key=%q auth=%q body=%v", gotKey, gotAuth, gotBody)
	}
	if out.Fine == nil || out.Fine.Total != 22 || out.Level != 2 {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestCooldownErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"cooldown active: work","retry_after_seconds":125}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Work(context.Background(), "tok", "", "")
	left, ok := CooldownLeft(err)
	if !ok || left != 125*time.Second {
		t.Fatalf("left=%s ok=%v err=%v", left, ok, err)
	}
	if err.Error() != "api status 429: cooldown active: work" {
		t.Fatalf("err=%q", err.Error())
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prev := Dir
	Dir = func() (string, error) { return dir, nil }
	defer func() { Dir = prev }()

	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error without a session")
	}
	if err := SaveSession(Session{AccessToken: "a", UserID: "u"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := LoadSession()
	if err != nil || s.UserID != "u" {
		t.Fatalf("session=%+v err=%v", s, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
