// Package kv is the durable key-value layer under the entity store. Values are
// opaque strings; callers serialize structure themselves.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by every error caused by an expired per-call deadline.
var ErrTimeout = errors.New("kv: operation timed out")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store is closed")

// Store is implemented by every backend. A Set or Remove either applies fully or
// not at all.
type Store interface {
	// Get returns the value for key; ok is false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes all keys in one batch. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Open selects a backend by name: "bolt", "sqlite" or "memory".
func Open(backend, dsn string, timeout time.Duration) (Store, error) {
	var (
		s   Store
		err error
	)
	switch backend {
	case "bolt":
		s, err = OpenBolt(dsn, timeout)
	case "sqlite":
		s, err = OpenSQLite(dsn)
	case "memory":
		s = NewMemory()
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(s, timeout), nil
}

type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A non-positive d returns s unchanged.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{inner: s, timeout: d}
}

func (t *timeoutStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, ok, err := t.inner.Get(ctx, key)
	return v, ok, mapDeadline(err)
}

func (t *timeoutStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return mapDeadline(t.inner.Set(ctx, key, value))
}

func (t *timeoutStore) Remove(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return mapDeadline(t.inner.Remove(ctx, keys...))
}

func (t *timeoutStore) Close() error { return t.inner.Close() }

func mapDeadline(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// checkContext reports a cancelled or expired context before any I/O starts.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	return nil
}
