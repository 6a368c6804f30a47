package retry

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ClimaPulse/internal/domain/errs"
)

// Config bounds retried calls.
type Config struct {
	// MaxAttempts is the number of retries allowed after the first call.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; retry n waits BaseDelay*2^n.
	BaseDelay time.Duration
	// AttemptTimeout caps a single invocation. Zero disables it.
	AttemptTimeout time.Duration
}

// Backoff describes a scheduled retry.
type Backoff struct {
	OpID    string
	Attempt int
	Delay   time.Duration
	Err     error
}

type Option func(*Policy)

func WithClock(c clockwork.Clock) Option {
	return func(p *Policy) { p.clock = c }
}

// WithObserver registers a callback invoked before every backoff wait.
func WithObserver(fn func(Backoff)) Option {
	return func(p *Policy) { p.observe = fn }
}

// WithRetryable overrides the predicate deciding which errors are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.retryable = fn }
}

// Policy retries operations with exponential backoff and tracks the number
// of attempts per in-flight operation id.
type Policy struct {
	cfg       Config
	clock     clockwork.Clock
	observe   func(Backoff)
	retryable func(error) bool

	mu       sync.Mutex
	attempts map[string]int
}

func New(cfg Config, opts ...Option) *Policy {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	p := &Policy{
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		retryable: func(err error) bool { return !errs.IsPermanent(err) },
		attempts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CallOption adjusts a single Do call.
type CallOption func(*callConfig)

type callConfig struct {
	limit int
}

// MaxAttempts overrides the configured retry limit for one call.
func MaxAttempts(n int) CallOption {
	return func(c *callConfig) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// Do runs op until it succeeds, fails permanently, exhausts the retry limit
// or ctx is done. Exhaustion returns a RETRY_EXHAUSTED error wrapping the
// last failure; cancellation returns CANCELED. The attempt counter for opID
// is removed on every exit path.
func (p *Policy) Do(ctx context.Context, opID string, op func(ctx context.Context) error, opts ...CallOption) error {
	cc := callConfig{limit: p.cfg.MaxAttempts}
	for _, o := range opts {
		o(&cc)
	}

	p.begin(opID)
	defer p.clear(opID)

	for {
		err := p.invoke(ctx, op)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return errs.Canceled(opID, err)
		}

		n := p.count(opID)
		if n >= cc.limit {
			return errs.Exhausted(opID, n+1, err)
		}

		delay := p.cfg.BaseDelay << uint(n)
		if p.observe != nil {
			p.observe(Backoff{OpID: opID, Attempt: n + 1, Delay: delay, Err: err})
		}
		select {
		case <-p.clock.After(delay):
		case <-ctx.Done():
			return errs.Canceled(opID, ctx.Err())
		}
		p.increment(opID)
	}
}

// DoResult is Do for operations that produce a value.
func DoResult[T any](ctx context.Context, p *Policy, opID string, op func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var out T
	err := p.Do(ctx, opID, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}

// Attempts returns the retries made so far for an in-flight operation.
func (p *Policy) Attempts(opID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.attempts[opID]
	return n, ok
}

// InFlight returns the number of tracked operations.
func (p *Policy) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts)
}

func (p *Policy) invoke(ctx context.Context, op func(ctx context.Context) error) error {
	if p.cfg.AttemptTimeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	return op(actx)
}

func (p *Policy) begin(opID string) {
	p.mu.Lock()
	if _, ok := p.attempts[opID]; !ok {
		p.attempts[opID] = 0
	}
	p.mu.Unlock()
}

func (p *Policy) count(opID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[opID]
}

func (p *Policy) increment(opID string) {
	p.mu.Lock()
	p.attempts[opID]++
	p.mu.Unlock()
}

func (p *Policy) clear(opID string) {
	p.mu.Lock()
	delete(p.attempts, opID)
	p.mu.Unlock()
}
