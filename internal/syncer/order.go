package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/cache"
	"github.com/starford/checktick/internal/models"
)

// Orderable is an entity carrying an explicit display position.
type Orderable[E any] interface {
	Key() string
	Position() int
	WithOrder(order int) E
}

// Reorderer persists a full order mapping in one request.
type Reorderer interface {
	Reorder(ctx context.Context, items []models.OrderItem) error
}

// OrderConfig configures an OrderModel. Zero values get defaults.
type OrderConfig struct {
	Entity   string
	Timeout  time.Duration
	Notifier Notifier
	Logger   *slog.Logger
}

type queuedReorder[E any] struct {
	op   *Operation[[]E]
	list []E
}

// OrderModel keeps the cache's sequence as the display order and persists
// it as a batch. Only the latest batch is sent when reorders pile up behind
// an in-flight request.
type OrderModel[E Orderable[E]] struct {
	cfg    OrderConfig
	cache  *cache.Cache[string, E]
	remote Reorderer

	mu      sync.Mutex
	batch   []models.OrderItem
	queued  []queuedReorder[E]
	sending bool
	wg      sync.WaitGroup
}

// NewOrderModel returns an order model over c.
func NewOrderModel[E Orderable[E]](c *cache.Cache[string, E], remote Reorderer, cfg OrderConfig) *OrderModel[E] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OrderModel[E]{cfg: cfg, cache: c, remote: remote}
}

// Normalize sorts the cache by position (stable) and renumbers positions to
// their indexes. It does not talk to the store.
func (o *OrderModel[E]) Normalize() []E {
	return o.cache.Rearrange(func(items []E) []E {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Position() < items[j].Position()
		})
		for i := range items {
			items[i] = items[i].WithOrder(i)
		}
		return items
	})
}

// Reorder moves the entity at index from to index to in the full list and
// renumbers every entity. The new mapping is persisted in the background.
func (o *OrderModel[E]) Reorder(from, to int) *Operation[[]E] {
	var (
		err   error
		moved bool
		batch []models.OrderItem
	)
	list := o.cache.Rearrange(func(items []E) []E {
		n := len(items)
		switch {
		case from < 0 || from >= n:
			err = apperr.Invalid("from", "index %d out of range [0,%d)", from, n)
			return items
		case to < 0 || to >= n:
			err = apperr.Invalid("to", "index %d out of range [0,%d)", to, n)
			return items
		case from == to:
			return items
		}
		moved = true
		e := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]E{e}, items[to:]...)...)
		batch = make([]models.OrderItem, 0, n)
		for i := range items {
			items[i] = items[i].WithOrder(i)
			if id := items[i].Key(); !IsPlaceholder(id) {
				batch = append(batch, models.OrderItem{ID: id, Order: i})
			}
		}
		return items
	})

	if err != nil {
		o.cfg.Notifier.Notify(outcome(o.cfg.Entity, OpReorder, "", nil, err))
		return failed[[]E](OpReorder, "", nil, err)
	}
	op := newOperation[[]E](OpReorder, "", nil)
	if !moved || len(batch) == 0 {
		op.resolve(list, nil)
		return op
	}
	o.enqueue(batch, queuedReorder[E]{op: op, list: list})
	return op
}

// ReorderByID moves activeID to the position currently held by overID. Both
// are looked up in the full list, so callers may pass ids from a filtered
// view.
func (o *OrderModel[E]) ReorderByID(activeID, overID string) *Operation[[]E] {
	from, to := o.cache.IndexOf(activeID), o.cache.IndexOf(overID)
	for _, miss := range []struct {
		id  string
		idx int
	}{{activeID, from}, {overID, to}} {
		if miss.idx < 0 {
			err := fmt.Errorf("%s %s: %w", o.cfg.Entity, miss.id, apperr.ErrNotFound)
			o.cfg.Notifier.Notify(outcome(o.cfg.Entity, OpReorder, miss.id, nil, err))
			return failed[[]E](OpReorder, miss.id, nil, err)
		}
	}
	return o.Reorder(from, to)
}

// Wait blocks until every queued batch has been sent.
func (o *OrderModel[E]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *OrderModel[E]) enqueue(batch []models.OrderItem, q queuedReorder[E]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batch = batch
	o.queued = append(o.queued, q)
	if o.sending {
		return
	}
	o.sending = true
	o.wg.Add(1)
	go o.run()
}

func (o *OrderModel[E]) run() {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		if o.batch == nil {
			o.sending = false
			o.mu.Unlock()
			return
		}
		batch, queued := o.batch, o.queued
		o.batch, o.queued = nil, nil
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Timeout)
		err := o.remote.Reorder(ctx, batch)
		cancel()
		if err != nil {
			o.cfg.Logger.Warn("reorder failed",
				slog.String("entity", o.cfg.Entity),
				slog.Int("items", len(batch)),
				slog.String("error", err.Error()))
		}
		o.cfg.Notifier.Notify(outcome(o.cfg.Entity, OpReorder, "", nil, err))
		for _, q := range queued {
			q.op.resolve(q.list, err)
		}
	}
}
