// Package syncer keeps a local entity cache consistent with the remote store:
// optimistic mutation, debounced per-entity persistence and explicit ordering.
package syncer

import (
	"context"
	"sync"

	"github.com/starford/checktick/internal/models"
)

// Operation is one optimistic change: the intent applied locally when the
// operation was issued, and the pending confirmation from the remote store.
type Operation[T any] struct {
	Kind  OpKind
	ID    string
	Patch models.Patch
	// Previous is the cached value before the change, when there was one.
	Previous T

	done     chan struct{}
	once     sync.Once
	result   T
	err      error
	mu       sync.Mutex
	rollback func()
}

func newOperation[T any](kind OpKind, id string, patch models.Patch) *Operation[T] {
	return &Operation[T]{Kind: kind, ID: id, Patch: patch, done: make(chan struct{})}
}

func failed[T any](kind OpKind, id string, patch models.Patch, err error) *Operation[T] {
	op := newOperation[T](kind, id, patch)
	var zero T
	op.resolve(zero, err)
	return op
}

func (o *Operation[T]) resolve(result T, err error) {
	o.once.Do(func() {
		o.result, o.err = result, err
		close(o.done)
	})
}

// Done is closed once the remote store confirmed or rejected the change.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation settles or ctx ends.
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.result, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err returns the failure once settled; nil while pending or on success.
func (o *Operation[T]) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Rollback restores the local state the operation replaced. It only acts on
// a settled, failed operation that supports it, and only once.
func (o *Operation[T]) Rollback() bool {
	if o.Err() == nil {
		return false
	}
	o.mu.Lock()
	fn := o.rollback
	o.rollback = nil
	o.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (o *Operation[T]) setRollback(fn func()) {
	o.mu.Lock()
	o.rollback = fn
	o.mu.Unlock()
}

// Reject reports err to n and returns an operation that already failed with
// it, for checks made before anything reaches the store.
func Reject[T any](n Notifier, entity string, kind OpKind, id string, err error) *Operation[T] {
	n.Notify(outcome(entity, kind, id, nil, err))
	return failed[T](kind, id, nil, err)
}
