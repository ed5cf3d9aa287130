package jobs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRegistered           = errors.New("participant is not registered")
	ErrBanned                  = errors.New("participant is banned")
	ErrNoJob                   = errors.New("no job selected")
	ErrAlreadyEmployed         = errors.New("already employed: replacement must be explicit")
	ErrUnknownProfession       = errors.New("unknown profession")
	ErrCooldownActive          = errors.New("cooldown active")
	ErrNotAuthorized           = errors.New("profession cannot fine other participants")
	ErrInvalidTarget           = errors.New("cannot target yourself")
	ErrTargetIneligible        = errors.New("target is not eligible")
	ErrTargetProtected         = errors.New("target balance is below the protection floor")
	ErrInsufficientVictimFunds = errors.New("target has no funds to fine")

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
	ErrLedgerUnavailable    = errors.New("ledger unavailable, retry later")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrConfiguration        = errors.New("configuration error")
)

// CooldownError reports a rejected acquire together with the time left on
// the live entry.
type CooldownError struct {
	Key       CooldownKey
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active for %s: %s remaining", e.Key, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// ConfigError is a lookup outside the configured profession tables. It is a
// caller bug and is never clamped.
type ConfigError struct {
	Profession Profession
	Level      int
	Reason     string
}

func (e *ConfigError) Error() string {
	if e.Level == 0 {
		return fmt.Sprintf("configuration error: profession %q: %s", e.Profession, e.Reason)
	}
	return fmt.Sprintf("configuration error: profession %q level %d: %s", e.Profession, e.Level, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

var userErrors = []error{
	ErrNotRegistered,
	ErrBanned,
	ErrNoJob,
	ErrAlreadyEmployed,
	ErrUnknownProfession,
	ErrCooldownActive,
	ErrNotAuthorized,
	ErrInvalidTarget,
	ErrTargetIneligible,
	ErrTargetProtected,
	ErrInsufficientVictimFunds,
	ErrDuplicateIdempotency,
}

// IsUserError reports whether err is an expected, self-correctable outcome
// rather than an infrastructure or configuration failure.
func IsUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RemainingCooldown extracts the wait time from a cooldown rejection.
func RemainingCooldown(err error) (time.Duration, bool) {
	var cd *CooldownError
	if errors.As(err, &cd) {
		return cd.Remaining, true
	}
	return 0, false
}
