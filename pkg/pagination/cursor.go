package pagination

import (
	"context"
)

type cursorState int

const (
	stateAwaitingFirstPage cursorState = iota
	stateYielding
	stateAwaitingNextPage
	stateDone
	stateFailed
)

func (s cursorState) String() string {
	switch s {
	case stateAwaitingFirstPage:
		return "awaiting_first_page"
	case stateYielding:
		return "yielding"
	case stateAwaitingNextPage:
		return "awaiting_next_page"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Cursor is a pull-based traversal over all pages reachable from a Paginator.
//
// Cross-page state is two fields: the active page and the pending prefetch.
// The pending page is registered before the first item of the active page is
// returned and handed over once the active page is exhausted, so at most one
// fetch is ever in flight ahead of the consumer.
//
// A Cursor is not safe for concurrent use.
type Cursor[In Request[In], Out Response[T], T any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	page    *Paginator[In, Out, T]
	pending *Paginator[In, Out, T]

	items []T
	pos   int
	state cursorState
	err   error
}

// Iterate starts a traversal at this page.
// The cursor must be closed to release a pending prefetch.
func (p *Paginator[In, Out, T]) Iterate(ctx context.Context) *Cursor[In, Out, T] {
	ctx, cancel := context.WithCancel(ctx)
	return &Cursor[In, Out, T]{
		ctx:    ctx,
		cancel: cancel,
		page:   p,
		state:  stateAwaitingFirstPage,
	}
}

// Next returns the next item. ok is false once the traversal is over.
// A failing page is reported by exactly one call; later calls return
// (zero, false, nil) and Err keeps the cause.
func (c *Cursor[In, Out, T]) Next() (item T, ok bool, err error) {
	for {
		switch c.state {
		case stateAwaitingFirstPage, stateAwaitingNextPage:
			if err := c.load(); err != nil {
				c.fail(err)
				return item, false, err
			}
			c.state = stateYielding

		case stateYielding:
			if c.pos < len(c.items) {
				item = c.items[c.pos]
				c.pos++
				return item, true, nil
			}
			if c.pending == nil {
				c.finish()
				return item, false, nil
			}
			c.handover()

		default:
			return item, false, nil
		}
	}
}

// Err returns the error that ended the traversal, if any.
func (c *Cursor[In, Out, T]) Err() error {
	return c.err
}

// Close stops the traversal. A prefetched page that was never reached is
// abandoned: its fetch is cancelled and its outcome discarded.
func (c *Cursor[In, Out, T]) Close() error {
	if c.pending != nil {
		c.page.opts.logger.Debug().
			Str("operation", c.page.opts.operation).
			Int("page", c.pending.index).
			Msg("Abandoning prefetched page")
		prefetchAbandonedTotal.WithLabelValues(c.page.opts.operation).Inc()
		c.deregister()
	}
	if c.state != stateFailed {
		c.state = stateDone
	}
	c.items = nil
	c.cancel()
	return nil
}

// load materializes the active page and registers the prefetch of its successor.
func (c *Cursor[In, Out, T]) load() error {
	if err := c.page.Materialize(c.ctx); err != nil {
		return err
	}

	out := c.page.loaded()
	if token := continuation[T](out); token != nil {
		next := c.page.next(*token)
		next.prefetch(c.ctx)
		c.register(next)
	}

	c.items = pageItems[T](out)
	c.pos = 0
	return nil
}

// handover makes the pending prefetch the active page.
func (c *Cursor[In, Out, T]) handover() {
	next := c.pending
	c.deregister()

	c.page.opts.logger.Debug().
		Str("operation", c.page.opts.operation).
		Int("page", next.index).
		Msg("Advancing to prefetched page")

	c.page = next
	c.items = nil
	c.state = stateAwaitingNextPage
}

func (c *Cursor[In, Out, T]) register(next *Paginator[In, Out, T]) {
	c.pending = next
	prefetchStartedTotal.WithLabelValues(c.page.opts.operation).Inc()
	prefetchInFlight.WithLabelValues(c.page.opts.operation).Inc()
}

func (c *Cursor[In, Out, T]) deregister() {
	prefetchInFlight.WithLabelValues(c.page.opts.operation).Dec()
	c.pending = nil
}

func (c *Cursor[In, Out, T]) finish() {
	c.state = stateDone
	c.items = nil
	c.cancel()
}

func (c *Cursor[In, Out, T]) fail(err error) {
	c.state = stateFailed
	c.err = err
	c.items = nil
	c.cancel()
}
