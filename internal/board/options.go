// Package board composes caches, mutators and the order model into the task
// list and sticky-note board a client works with.
package board

import (
	"log/slog"
	"time"

	"github.com/starford/checktick/internal/syncer"
)

// DefaultTypingDelay is how long note content edits wait for more keystrokes.
const DefaultTypingDelay = 1000 * time.Millisecond

// DefaultDragDelay coalesces position updates while a note is dragged.
const DefaultDragDelay = 300 * time.Millisecond

// Option is a functional option for boards.
type Option func(*options)

type options struct {
	notifier    syncer.Notifier
	logger      *slog.Logger
	clock       syncer.Clock
	timeout     time.Duration
	typingDelay time.Duration
	dragDelay   time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		logger:      slog.Default(),
		clock:       syncer.SystemClock,
		timeout:     syncer.DefaultRequestTimeout,
		typingDelay: DefaultTypingDelay,
		dragDelay:   DefaultDragDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = syncer.LogNotifier(o.logger)
	}
	return o
}

// WithNotifier routes operation outcomes to n instead of the log.
func WithNotifier(n syncer.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c syncer.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTimeout bounds each store request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTypingDelay sets the debounce window for note content edits.
func WithTypingDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.typingDelay = d
		}
	}
}

// WithDragDelay sets the debounce window for note moves.
func WithDragDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.dragDelay = d
		}
	}
}
