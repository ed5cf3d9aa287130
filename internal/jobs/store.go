package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Participant is the slice of the account store the engine reads: identity,
// ban flag and balance.
type Participant struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	Balance   int64     `json:"balance"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

type FineEvent struct {
	ID        uuid.UUID `json:"id"`
	Actor     string    `json:"actor"`
	Victim    string    `json:"victim"`
	Fine      int64     `json:"fine"`
	Bonus     int64     `json:"bonus"`
	CreatedAt time.Time `json:"created_at"`
}

type FineStats struct {
	Count      int64 `json:"count"`
	TotalFined int64 `json:"total_fined"`
	TotalBonus int64 `json:"total_bonus"`
}

// Store is the persistence boundary. InTx runs fn in one transaction and
// commits only if fn returns nil; implementations may run fn more than once
// when the database reports a serialization conflict.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	EnsureParticipant(ctx context.Context, id, username string, startBalance int64) (Participant, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	FineStats(ctx context.Context, actor string, since time.Time) (FineStats, error)
	PurgeCooldowns(ctx context.Context, before time.Time) (int64, error)
}

type Tx interface {
	// Participant returns ErrNotRegistered when id is unknown.
	Participant(ctx context.Context, id string) (Participant, error)
	ParticipantByUsername(ctx context.Context, username string) (Participant, error)

	// Job returns ErrNoJob when the participant is unemployed.
	Job(ctx context.Context, participant string) (Record, error)
	PutJob(ctx context.Context, rec Record) error
	DeleteJob(ctx context.Context, participant string) (bool, error)

	// AcquireCooldown writes expiresAt for key when no live entry exists, as
	// one conditional statement. When the entry is live it reports
	// acquired=false and the stored expiry.
	AcquireCooldown(ctx context.Context, key CooldownKey, now, expiresAt time.Time) (acquired bool, current time.Time, err error)
	SetCooldown(ctx context.Context, key CooldownKey, expiresAt time.Time) error
	Cooldown(ctx context.Context, key CooldownKey) (expiresAt time.Time, ok bool, err error)
	ClearCooldown(ctx context.Context, key CooldownKey) (bool, error)

	// Credit and Debit return the new balance. Debit fails with
	// ErrInsufficientFunds rather than going below zero.
	Credit(ctx context.Context, participant string, amount int64) (int64, error)
	Debit(ctx context.Context, participant string, amount int64) (int64, error)

	AppendFine(ctx context.Context, ev FineEvent) error
	// ClaimRequestKey returns ErrDuplicateIdempotency for a key already used
	// by the participant.
	ClaimRequestKey(ctx context.Context, participant, key, action string, now time.Time) error
}
