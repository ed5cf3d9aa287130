// Package sqlite stores engine state in a single SQLite file. Writers
// serialize on the database lock: every transaction starts with BEGIN
// IMMEDIATE.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"payday/internal/jobs"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

var _ jobs.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(jobs.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) EnsureParticipant(ctx context.Context, id, username string, startBalance int64) (jobs.Participant, error) {
	var out jobs.Participant
	err := s.InTx(ctx, func(t jobs.Tx) error {
		tx := t.(*storeTx).tx
		now := millis(time.Now())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id, username, balance, is_banned, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, id, nullString(username), startBalance, now, now); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		if username != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE participants SET username = ?, updated_at = ?
				WHERE id = ? AND (username IS NULL OR username <> ?)
			`, username, now, id, username); err != nil {
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants SET is_banned = ?, updated_at = ? WHERE id = ?
	`, banned, millis(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobs.ErrNotRegistered
	}
	return nil
}

func (s *Store) FineStats(ctx context.Context, actor string, since time.Time) (jobs.FineStats, error) {
	var row struct {
		Count int64 `db:"n"`
		Fined int64 `db:"fined"`
		Bonus int64 `db:"bonus"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS n,
		       COALESCE(SUM(fine_amount), 0) AS fined,
		       COALESCE(SUM(bonus_amount), 0) AS bonus
		FROM fine_events
		WHERE (? = '' OR actor_id = ?) AND created_at >= ?
	`, actor, actor, millis(since))
	if err != nil {
		return jobs.FineStats{}, err
	}
	return jobs.FineStats{Count: row.Count, TotalFined: row.Fined, TotalBonus: row.Bonus}, nil
}

func (s *Store) PurgeCooldowns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE expires_at <= ?`, millis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type storeTx struct {
	tx *sqlx.Tx
}

type participantRow struct {
	ID        string         `db:"id"`
	Username  sql.NullString `db:"username"`
	Balance   int64          `db:"balance"`
	Banned    bool           `db:"is_banned"`
	CreatedAt int64          `db:"created_at"`
}

func (r participantRow) participant() jobs.Participant {
	return jobs.Participant{
		ID:        r.ID,
		Username:  r.Username.String,
		Balance:   r.Balance,
		Banned:    r.Banned,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

const participantColumns = `id, username, balance, is_banned, created_at`

func (t *storeTx) Participant(ctx context.Context, id string) (jobs.Participant, error) {
	var row participantRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Participant{}, jobs.ErrNotRegistered
	}
	if err != nil {
		return jobs.Participant{}, err
	}
	return row.participant(), nil
}

func (t *storeTx) ParticipantByUsername(ctx context.Context, username string) (jobs.Participant, error) {
	var row participantRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+participantColumns+` FROM participants WHERE username = ? COLLATE NOCASE`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Participant{}, jobs.ErrNotRegistered
	}
	if err != nil {
		return jobs.Participant{}, err
	}
	return row.participant(), nil
}

type jobRow struct {
	Participant  string        `db:"participant_id"`
	Profession   string        `db:"profession"`
	Level        int           `db:"level"`
	TimesWorked  int           `db:"times_worked"`
	LastWorkTime sql.NullInt64 `db:"last_work_time"`
	CreatedAt    int64         `db:"created_at"`
	UpdatedAt    int64         `db:"updated_at"`
}

func (t *storeTx) Job(ctx context.Context, participant string) (jobs.Record, error) {
	var row jobRow
	err := t.tx.GetContext(ctx, &row, `
		SELECT participant_id, profession, level, times_worked, last_work_time, created_at, updated_at
		FROM jobs WHERE participant_id = ?
	`, participant)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Record{}, jobs.ErrNoJob
	}
	if err != nil {
		return jobs.Record{}, err
	}
	rec := jobs.Record{
		Participant: row.Participant,
		Profession:  jobs.Profession(row.Profession),
		Level:       row.Level,
		TimesWorked: row.TimesWorked,
		CreatedAt:   fromMillis(row.CreatedAt),
		UpdatedAt:   fromMillis(row.UpdatedAt),
	}
	if row.LastWorkTime.Valid {
		at := fromMillis(row.LastWorkTime.Int64)
		rec.LastWorkTime = &at
	}
	return rec, nil
}

func (t *storeTx) PutJob(ctx context.Context, rec jobs.Record) error {
	var last sql.NullInt64
	if rec.LastWorkTime != nil {
		last = sql.NullInt64{Int64: millis(*rec.LastWorkTime), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO jobs (participant_id, profession, level, times_worked, last_work_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO UPDATE SET
			profession = excluded.profession,
			level = excluded.level,
			times_worked = excluded.times_worked,
			last_work_time = excluded.last_work_time,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, rec.Participant, string(rec.Profession), rec.Level, rec.TimesWorked, last, millis(rec.CreatedAt), millis(rec.UpdatedAt))
	return err
}

func (t *storeTx) DeleteJob(ctx context.Context, participant string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE participant_id = ?`, participant)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *storeTx) AcquireCooldown(ctx context.Context, key jobs.CooldownKey, now, expiresAt time.Time) (bool, time.Time, error) {
	var stored int64
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO cooldowns (participant_id, action, target, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (participant_id, action, target) DO UPDATE SET expires_at = excluded.expires_at
		WHERE cooldowns.expires_at <= ?
		RETURNING expires_at
	`, key.Participant, string(key.Action), key.Target, millis(expiresAt), millis(now)).Scan(&stored)
	if err == nil {
		return true, fromMillis(stored), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
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
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cooldowns (participant_id, action, target, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (participant_id, action, target) DO UPDATE SET expires_at = excluded.expires_at
	`, key.Participant, string(key.Action), key.Target, millis(expiresAt))
	return err
}

func (t *storeTx) Cooldown(ctx context.Context, key jobs.CooldownKey) (time.Time, bool, error) {
	var stored int64
	err := t.tx.GetContext(ctx, &stored, `
		SELECT expires_at FROM cooldowns
		WHERE participant_id = ? AND action = ? AND target = ?
	`, key.Participant, string(key.Action), key.Target)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromMillis(stored), true, nil
}

func (t *storeTx) ClearCooldown(ctx context.Context, key jobs.CooldownKey) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM cooldowns WHERE participant_id = ? AND action = ? AND target = ?
	`, key.Participant, string(key.Action), key.Target)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *storeTx) Credit(ctx context.Context, participant string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must not be negative")
	}
	var balance int64
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE participants SET balance = balance + ?, updated_at = ?
		WHERE id = ?
		RETURNING balance
	`, amount, millis(time.Now()), participant).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, jobs.ErrNotRegistered
	}
	return balance, err
}

func (t *storeTx) Debit(ctx context.Context, participant string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must not be negative")
	}
	var balance int64
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE participants SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND balance >= ?
		RETURNING balance
	`, amount, millis(time.Now()), participant, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := t.Participant(ctx, participant); err != nil {
			return 0, err
		}
		return 0, jobs.ErrInsufficientFunds
	}
	return balance, err
}

func (t *storeTx) AppendFine(ctx context.Context, ev jobs.FineEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO fine_events (id, actor_id, victim_id, fine_amount, bonus_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID.String(), ev.Actor, ev.Victim, ev.Fine, ev.Bonus, millis(ev.CreatedAt))
	return err
}

func (t *storeTx) ClaimRequestKey(ctx context.Context, participant, key, action string, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO request_keys (participant_id, key, action, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (participant_id, key) DO NOTHING
	`, participant, key, action, millis(now))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobs.ErrDuplicateIdempotency
	}
	return nil
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
