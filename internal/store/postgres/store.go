package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payday/internal/jobs"
)

//go:embed schema.sql
var schema string

const (
	maxAttempts    = 8
	firstRetry     = 75 * time.Millisecond
	maxRetryDelay  = 1200 * time.Millisecond
	serializeState = "40001"
)

type Store struct {
	db *pgxpool.Pool
}

var _ jobs.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InTx runs fn at SERIALIZABLE and replays it on serialization failures.
func (s *Store) InTx(ctx context.Context, fn func(jobs.Tx) error) error {
	retryDelay := firstRetry
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxRetryDelay {
			retryDelay *= 2
		}
	}
	return jobs.ErrTxConflict
}

func (s *Store) attempt(ctx context.Context, fn func(jobs.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %v", jobs.ErrLedgerUnavailable, err)
		}
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) EnsureParticipant(ctx context.Context, id, username string, startBalance int64) (jobs.Participant, error) {
	var out jobs.Participant
	err := s.InTx(ctx, func(t jobs.Tx) error {
		tx := t.(*storeTx).tx
		if _, err := tx.Exec(ctx, `
			INSERT INTO payday.participants (id, username, balance)
			VALUES ($1, NULLIF($2, ''), $3)
			ON CONFLICT (id) DO NOTHING
		`, id, username, startBalance); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		if username != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE payday.participants SET username = $2, updated_at = now()
				WHERE id = $1 AND username IS DISTINCT FROM $2
			`, id, username); err != nil {
				return fmt.Errorf("update username: %w", err)
			}
		}
		p, err := t.Participant(ctx, id)
		out = p
		return err
	})
	return out, err
}

func (s *Store) SetBanned(ctx context.Context, id string, banned bool) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE payday.participants SET is_banned = $2, updated_at = now() WHERE id = $1
	`, id, banned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return jobs.ErrNotRegistered
	}
	return nil
}

func (s *Store) FineStats(ctx context.Context, actor string, since time.Time) (jobs.FineStats, error) {
	var out jobs.FineStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(1), COALESCE(SUM(fine_amount), 0), COALESCE(SUM(bonus_amount), 0)
		FROM payday.fine_events
		WHERE ($1 = '' OR actor_id = $1) AND created_at >= $2
	`, actor, since).Scan(&out.Count, &out.TotalFined, &out.TotalBonus)
	return out, err
}

func (s *Store) PurgeCooldowns(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM payday.cooldowns WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

type storeTx struct {
	tx pgx.Tx
}

const participantColumns = `id, COALESCE(username, ''), balance, is_banned, created_at`

func scanParticipant(row pgx.Row) (jobs.Participant, error) {
	var p jobs.Participant
	err := row.Scan(&p.ID, &p.Username, &p.Balance, &p.Banned, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.Participant{}, jobs.ErrNotRegistered
	}
	return p, err
}

func (t *storeTx) Participant(ctx context.Context, id string) (jobs.Participant, error) {
	return scanParticipant(t.tx.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM payday.participants WHERE id = $1
	`, id))
}

func (t *storeTx) ParticipantByUsername(ctx context.Context, username string) (jobs.Participant, error) {
	return scanParticipant(t.tx.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM payday.participants WHERE lower(username) = lower($1)
	`, username))
}

func (t *storeTx) Job(ctx context.Context, participant string) (jobs.Record, error) {
	var rec jobs.Record
	var profession string
	err := t.tx.QueryRow(ctx, `
		SELECT participant_id, profession, level, times_worked, last_work_time, created_at, updated_at
		FROM payday.jobs
		WHERE participant_id = $1
	`, participant).Scan(&rec.Participant, &profession, &rec.Level, &rec.TimesWorked, &rec.LastWorkTime, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.Record{}, jobs.ErrNoJob
	}
	if err != nil {
		return jobs.Record{}, err
	}
	rec.Profession = jobs.Profession(profession)
	return rec, nil
}

func (t *storeTx) PutJob(ctx context.Context, rec jobs.Record) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payday.jobs (participant_id, profession, level, times_worked, last_work_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (participant_id) DO UPDATE SET
			profession = EXCLUDED.profession,
			level = EXCLUDED.level,
			times_worked = EXCLUDED.times_worked,
			last_work_time = EXCLUDED.last_work_time,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, rec.Participant, string(rec.Profession), rec.Level, rec.TimesWorked, rec.LastWorkTime, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *storeTx) DeleteJob(ctx context.Context, participant string) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM payday.jobs WHERE participant_id = $1`, participant)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (t *storeTx) AcquireCooldown(ctx context.Context, key jobs.CooldownKey, now, expiresAt time.Time) (bool, time.Time, error) {
	var stored time.Time
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payday.cooldowns AS c (participant_id, action, target, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id, action, target) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE c.expires_at <= $5
		RETURNING c.expires_at
	`, key.Participant, string(key.Action), key.Target, expiresAt, now).Scan(&stored)
	if err == nil {
		return true, stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, time.Time{}, err
	}
	current, ok, err := t.Cooldown(ctx, key)
	if err != nil {
		return false, time.Time{}, err
	}
	if !ok {
		return false, time.Time{}, fmt.Errorf("cooldown %s vanished during acquire", key)
	}
	return false, current, nil
}

func (t *storeTx) SetCooldown(ctx context.Context, key jobs.CooldownKey, expiresAt time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payday.cooldowns (participant_id, action, target, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id, action, target) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, key.Participant, string(key.Action), key.Target, expiresAt)
	return err
}

func (t *storeTx) Cooldown(ctx context.Context, key jobs.CooldownKey) (time.Time, bool, error) {
	var expires time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT expires_at FROM payday.cooldowns
		WHERE participant_id = $1 AND action = $2 AND target = $3
	`, key.Participant, string(key.Action), key.Target).Scan(&expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return expires, true, nil
}

func (t *storeTx) ClearCooldown(ctx context.Context, key jobs.CooldownKey) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		DELETE FROM payday.cooldowns
		WHERE participant_id = $1 AND action = $2 AND target = $3
	`, key.Participant, string(key.Action), key.Target)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (t *storeTx) Credit(ctx context.Context, participant string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must not be negative")
	}
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE payday.participants SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance
	`, participant, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, jobs.ErrNotRegistered
	}
	return balance, err
}

func (t *storeTx) Debit(ctx context.Context, participant string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must not be negative")
	}
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE payday.participants SET balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
		RETURNING balance
	`, participant, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := t.Participant(ctx, participant); err != nil {
			return 0, err
		}
		return 0, jobs.ErrInsufficientFunds
	}
	return balance, err
}

func (t *storeTx) AppendFine(ctx context.Context, ev jobs.FineEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payday.fine_events (id, actor_id, victim_id, fine_amount, bonus_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.Actor, ev.Victim, ev.Fine, ev.Bonus, ev.CreatedAt)
	return err
}

func (t *storeTx) ClaimRequestKey(ctx context.Context, participant, key, action string, now time.Time) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO payday.request_keys (participant_id, key, action, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id, key) DO NOTHING
	`, participant, key, action, now)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return jobs.ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializeState
}

// isUnavailable reports connection failures. Deadlines are left to the
// caller, which owns the timeout.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr *net.OpError
	return errors.As(err, &netErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
