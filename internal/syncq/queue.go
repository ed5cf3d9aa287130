// Package syncq keeps shifts that payctl could not deliver so they can be
// replayed later under their original idempotency keys.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

type Shift struct {
	Target         string    `json:"target,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	QueuedAt       time.Time `json:"queued_at"`
}

type Queue struct {
	path string
}

func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

func (q *Queue) Load() ([]Shift, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Shift{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Shift{}, nil
	}
	var out []Shift
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(shifts []Shift) error {
	if len(shifts) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(shifts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

func (q *Queue) Push(s Shift) error {
	shifts, err := q.Load()
	if err != nil {
		return err
	}
	for _, existing := range shifts {
		if existing.IdempotencyKey == s.IdempotencyKey {
			return nil
		}
	}
	return q.Save(append(shifts, s))
}

// Result is the outcome of replaying one queued shift.
type Result struct {
	Shift Shift
	Err   error
}

// Replay sends every queued shift in order. Shifts whose error satisfies
// retry stay queued; everything else, delivered or rejected, is dropped.
// Replay stops early when ctx is cancelled, keeping the unsent tail.
func (q *Queue) Replay(ctx context.Context, send func(context.Context, Shift) error, retry func(error) bool) ([]Result, error) {
	shifts, err := q.Load()
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(shifts))
	remaining := make([]Shift, 0, len(shifts))
	for i, s := range shifts {
		if ctx.Err() != nil {
			remaining = append(remaining, shifts[i:]...)
			break
		}
		err := send(ctx, s)
		results = append(results, Result{Shift: s, Err: err})
		if err != nil && retry(err) {
			remaining = append(remaining, s)
		}
	}
	if err := q.Save(remaining); err != nil {
		return results, err
	}
	return results, nil
}
