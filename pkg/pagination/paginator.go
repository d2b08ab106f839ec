package pagination

import (
	"context"
	"iter"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Request is an operation input that can be re-issued for a later page.
// WithNextToken returns a copy carrying token; the receiver is left untouched.
type Request[In any] interface {
	WithNextToken(token string) In
}

// Response is one decoded page of an operation.
type Response[T any] interface {
	// NextPageToken returns the continuation token, nil or empty on the last page.
	NextPageToken() *string

	// PageItems returns the rows of this page in server order.
	PageItems() []T
}

// Summarizer is implemented by responses carrying a summary scalar.
type Summarizer interface {
	PageSummary() *int64
}

// Client performs one network round-trip for an operation.
type Client[In, Out any] interface {
	Invoke(ctx context.Context, in In) (Out, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Invoke calls f(ctx, in).
func (f ClientFunc[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// Option configures a Paginator.
type Option func(*options)

type options struct {
	operation string
	logger    zerolog.Logger
}

// WithOperation names the operation in logs, metrics and errors.
func WithOperation(name string) Option {
	return func(o *options) {
		o.operation = name
	}
}

// WithLogger sets the logger used for page level events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Paginator is a lazy cursor over the pages of one operation.
//
// A Paginator owns exactly one page: the response to its input. The page is
// fetched at most once, either on first access or in the background when the
// Paginator was started as a prefetch. Following pages are reached through
// Items or Iterate, which derive new Paginators from the continuation token.
type Paginator[In Request[In], Out Response[T], T any] struct {
	client Client[In, Out]
	input  In
	index  int
	opts   options

	mu      sync.Mutex
	attempt *fetch[Out]
}

// fetch is one attempt at retrieving a page. An attempt cut short by the
// context it was started with is dropped from its Paginator, so the next
// caller starts over. Every other outcome is kept for good.
type fetch[Out any] struct {
	done      chan struct{}
	out       Out
	err       error
	cancelled bool
}

// New returns a Paginator whose page is fetched on first access.
func New[In Request[In], Out Response[T], T any](client Client[In, Out], input In, opts ...Option) *Paginator[In, Out, T] {
	o := options{
		operation: "unknown",
		logger:    log.With().Str("component", "pagination").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return newPaginator[In, Out, T](client, input, 0, o)
}

// FromPage returns a Paginator over a page the caller already holds, such as
// a response decoded outside this package. Materialize is a no-op for it;
// client and input are still required to continue past the page.
func FromPage[In Request[In], Out Response[T], T any](client Client[In, Out], input In, out Out, opts ...Option) *Paginator[In, Out, T] {
	p := New[In, Out, T](client, input, opts...)
	done := make(chan struct{})
	close(done)
	p.attempt = &fetch[Out]{done: done, out: out}
	return p
}

func newPaginator[In Request[In], Out Response[T], T any](client Client[In, Out], input In, index int, o options) *Paginator[In, Out, T] {
	return &Paginator[In, Out, T]{
		client: client,
		input:  input,
		index:  index,
		opts:   o,
	}
}

// Input returns the request that produced this page.
func (p *Paginator[In, Out, T]) Input() In {
	return p.input
}

// Materialize fetches the page if that has not happened yet.
// It blocks until the fetch completes or ctx is done. A fetch that fails on
// the service is memoized like a success: later calls never reach the client
// again. A fetch cancelled by the context of the caller that started it is
// not kept, and the next call fetches again.
func (p *Paginator[In, Out, T]) Materialize(ctx context.Context) error {
	if err := p.validate(); err != nil {
		return err
	}

	for {
		f := p.start(ctx)
		if f == nil {
			return ctx.Err()
		}

		select {
		case <-f.done:
		default:
			if err := p.wait(ctx, f); err != nil {
				return err
			}
		}

		if !f.cancelled {
			return f.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Page returns the decoded response after materializing it.
func (p *Paginator[In, Out, T]) Page(ctx context.Context) (Out, error) {
	if err := p.Materialize(ctx); err != nil {
		var zero Out
		return zero, err
	}
	return p.loaded(), nil
}

// NextToken returns the continuation token of this page.
// A nil token means this is the last page.
func (p *Paginator[In, Out, T]) NextToken(ctx context.Context) (*string, error) {
	out, err := p.Page(ctx)
	if err != nil {
		return nil, err
	}
	return continuation[T](out), nil
}

// Summary returns the summary scalar of this page, nil when the response type
// carries none.
func (p *Paginator[In, Out, T]) Summary(ctx context.Context) (*int64, error) {
	out, err := p.Page(ctx)
	if err != nil {
		return nil, err
	}
	if s, ok := any(out).(Summarizer); ok {
		return s.PageSummary(), nil
	}
	return nil, nil
}

// Items returns every item of this page and all following pages.
//
// The sequence is lazy and single pass. Each call starts a fresh traversal
// from this page; this page is not fetched again but later pages are. While
// the items of page N are being yielded, page N+1 is already in flight. If a
// page fails, the error is yielded once, after all items of earlier pages.
// Breaking out of the loop abandons the prefetched page.
func (p *Paginator[In, Out, T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		c := p.Iterate(ctx)
		defer c.Close()

		for {
			item, ok, err := c.Next()
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Collect drains Items. On failure it returns the items yielded before the
// failing page together with the error.
func (p *Paginator[In, Out, T]) Collect(ctx context.Context) ([]T, error) {
	var items []T
	for item, err := range p.Items(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// next derives the Paginator for the page following token.
func (p *Paginator[In, Out, T]) next(token string) *Paginator[In, Out, T] {
	return newPaginator[In, Out, T](p.client, p.input.WithNextToken(token), p.index+1, p.opts)
}

// prefetch starts the fetch in the background. A no-op when already started.
func (p *Paginator[In, Out, T]) prefetch(ctx context.Context) {
	p.start(ctx)
}

// start returns the current attempt, launching one bound to ctx if none is
// in flight or kept. It returns nil when a launch is needed but ctx is done.
func (p *Paginator[In, Out, T]) start(ctx context.Context) *fetch[Out] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempt == nil {
		if ctx.Err() != nil {
			return nil
		}
		p.attempt = &fetch[Out]{done: make(chan struct{})}
		go p.resolve(ctx, p.attempt)
	}
	return p.attempt
}

func (p *Paginator[In, Out, T]) wait(ctx context.Context, f *fetch[Out]) error {
	start := time.Now()
	defer func() {
		pageWaitDuration.WithLabelValues(p.opts.operation).Observe(time.Since(start).Seconds())
	}()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loaded returns the kept page. Valid only after Materialize succeeded.
func (p *Paginator[In, Out, T]) loaded() Out {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt.out
}

func (p *Paginator[In, Out, T]) resolve(ctx context.Context, f *fetch[Out]) {
	defer close(f.done)

	start := time.Now()
	out, err := p.client.Invoke(ctx, p.input)
	pageFetchDuration.WithLabelValues(p.opts.operation).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil {
		pagesFetchedTotal.WithLabelValues(p.opts.operation, "cancelled").Inc()
		p.mu.Lock()
		if p.attempt == f {
			p.attempt = nil
		}
		p.mu.Unlock()
		f.cancelled = true
		f.err = ctx.Err()
		return
	}

	if err != nil {
		pagesFetchedTotal.WithLabelValues(p.opts.operation, "error").Inc()
		f.err = &TransportError{Operation: p.opts.operation, Page: p.index, Err: err}
		return
	}

	pagesFetchedTotal.WithLabelValues(p.opts.operation, "ok").Inc()
	p.opts.logger.Debug().
		Str("operation", p.opts.operation).
		Int("page", p.index).
		Int("items", len(pageItems[T](out))).
		Bool("has_next", continuation[T](out) != nil).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	f.out = out
}

func (p *Paginator[In, Out, T]) validate() error {
	if p.client == nil || isNil(p.client) {
		return &ConfigurationError{Reason: "missing client injected in paginated result"}
	}
	if isNil(p.input) {
		return &ConfigurationError{Reason: "missing last request injected in paginated result"}
	}
	return nil
}

// continuation normalizes an empty token to nil.
func continuation[T any](out Response[T]) *string {
	if isNil(out) {
		return nil
	}
	token := out.NextPageToken()
	if token == nil || *token == "" {
		return nil
	}
	return token
}

// pageItems tolerates a nil response.
func pageItems[T any](out Response[T]) []T {
	if isNil(out) {
		return nil
	}
	return out.PageItems()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
