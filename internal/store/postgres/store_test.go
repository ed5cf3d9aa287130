package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payday/internal/jobs"
)

// newTestStore connects to PAYDAY_TEST_DATABASE_URL; the tests skip when it
// is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PAYDAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYDAY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestAcquireCooldownOnlyOncePerWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := "pg-" + uuid.NewString()
	if _, err := store.EnsureParticipant(ctx, id, "", 100); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	key := jobs.WorkKey(id)
	now := time.Now().UTC().Truncate(time.Millisecond)

	acquire := func(at time.Time) (bool, time.Time) {
		var ok bool
		var expires time.Time
		err := store.InTx(ctx, func(tx jobs.Tx) error {
			var err error
			ok, expires, err = tx.AcquireCooldown(ctx, key, at, at.Add(time.Hour))
			return err
		})
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		return ok, expires
	}

	if ok, _ := acquire(now); !ok {
		t.Fatalf("first acquire refused")
	}
	ok, expires := acquire(now.Add(time.Minute))
	if ok || !expires.Equal(now.Add(time.Hour)) {
		t.Fatalf("second acquire ok=%v expires=%v", ok, expires)
	}
	if ok, _ := acquire(now.Add(time.Hour)); !ok {
		t.Fatalf("acquire at expiry refused")
	}
}

func TestDebitNeverOverdraws(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := "pg-" + uuid.NewString()
	if _, err := store.EnsureParticipant(ctx, id, "", 40); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	err := store.InTx(ctx, func(tx jobs.Tx) error {
		_, err := tx.Debit(ctx, id, 41)
		return err
	})
	if !errors.Is(err, jobs.ErrInsufficientFunds) {
		t.Fatalf("overdraw err=%v", err)
	}
	err = store.InTx(ctx, func(tx jobs.Tx) error {
		balance, err := tx.Debit(ctx, id, 40)
		if err == nil && balance != 0 {
			t.Errorf("balance=%d", balance)
		}
		return err
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
}

func TestRequestKeyClaimedOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := "pg-" + uuid.NewString()
	if _, err := store.EnsureParticipant(ctx, id, "", 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	claim := func() error {
		return store.InTx(ctx, func(tx jobs.Tx) error {
			return tx.ClaimRequestKey(ctx, id, "k-1", "work", time.Now().UTC())
		})
	}
	if err := claim(); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := claim(); !errors.Is(err, jobs.ErrDuplicateIdempotency) {
		t.Fatalf("second claim err=%v", err)
	}
}

func TestIsSerializationError(t *testing.T) {
	if !isSerializationError(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("40001 not detected")
	}
	if isSerializationError(&pgconn.PgError{Code: "23505"}) || isSerializationError(errors.New("x")) {
		t.Fatalf("false positive")
	}
}

func TestIsUnavailable(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connect error", &pgconn.ConnectError{}, true},
		{"dial refused", fmt.Errorf("acquire: %w", refused), true},
		{"deadline", fmt.Errorf("acquire: %w", context.DeadlineExceeded), false},
		{"serialization", &pgconn.PgError{Code: "40001"}, false},
		{"other", errors.New("syntax error"), false},
	}
	for _, tc := range tests {
		if got := isUnavailable(tc.err); got != tc.want {
			t.Fatalf("%s: isUnavailable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBeginFailureIsLedgerUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Port 1 on loopback refuses connections; the lazy pool only dials on use.
	pool, err := pgxpool.New(ctx, "postgres://payday@127.0.0.1:1/payday?connect_timeout=2")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	err = New(pool).InTx(ctx, func(jobs.Tx) error { return nil })
	if !errors.Is(err, jobs.ErrLedgerUnavailable) {
		t.Fatalf("err=%v", err)
	}
}
