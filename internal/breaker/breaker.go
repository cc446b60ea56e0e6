// Package breaker implements a per-service circuit breaker whose state
// lives in a shared Store, so every hub replica sees the same circuit.
package breaker

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	FailureWindow    time.Duration
	// HalfOpenMaxCalls bounds the trial calls admitted while half_open.
	// Zero falls back to SuccessThreshold.
	HalfOpenMaxCalls int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		FailureWindow:    5 * time.Minute,
		HalfOpenMaxCalls: 2,
	}
}

// Status is a point-in-time view of one circuit.
type Status struct {
	Service      string     `json:"service"`
	State        State      `json:"state"`
	FailureCount int64      `json:"failure_count"`
	SuccessCount int64      `json:"success_count"`
	Threshold    int        `json:"threshold"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
}

type Breaker struct {
	store    Store
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	onChange func(service string, from, to State)
}

func New(store Store, cfg Config, logger *slog.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = def.FailureWindow
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = cfg.SuccessThreshold
	}
	return &Breaker{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnStateChange registers a hook called after every transition.
func (b *Breaker) OnStateChange(fn func(service string, from, to State)) {
	b.onChange = fn
}

func (b *Breaker) Config() Config {
	return b.cfg
}

func key(service, field string) string {
	return "circuit:" + service + ":" + field
}

func (b *Breaker) transitioned(service string, from, to State) {
	b.logger.Info("circuit state changed",
		slog.String("system", service),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	if b.onChange != nil {
		b.onChange(service, from, to)
	}
}

// state reads the circuit state, lazily moving an expired open circuit to
// half_open.
func (b *Breaker) state(ctx context.Context, service string) (State, error) {
	raw, ok, err := b.store.Get(ctx, key(service, "state"))
	if err != nil {
		return StateClosed, err
	}
	if !ok {
		return StateClosed, nil
	}

	st := State(raw)
	if st != StateOpen {
		return st, nil
	}

	openedAt, err := b.openedAt(ctx, service)
	if err != nil {
		return StateOpen, err
	}
	if openedAt != nil && b.now().Sub(*openedAt) < b.cfg.Timeout {
		return StateOpen, nil
	}

	swapped, err := b.store.CompareAndSwap(ctx, key(service, "state"), string(StateOpen), string(StateHalfOpen))
	if err != nil {
		return StateOpen, err
	}
	if swapped {
		b.transitioned(service, StateOpen, StateHalfOpen)
		return StateHalfOpen, nil
	}

	// Lost the race; whoever won already moved it on.
	raw, ok, err = b.store.Get(ctx, key(service, "state"))
	if err != nil || !ok {
		return StateClosed, err
	}
	return State(raw), nil
}

func (b *Breaker) openedAt(ctx context.Context, service string) (*time.Time, error) {
	raw, ok, err := b.store.Get(ctx, key(service, "opened_at"))
	if err != nil || !ok {
		return nil, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.Unix(0, nanos).UTC()
	return &t, nil
}

func (b *Breaker) counter(ctx context.Context, service, field string) int64 {
	raw, ok, err := b.store.Get(ctx, key(service, field))
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

// IsOpen reports whether the circuit is open. It never consumes a
// half_open trial slot; use CanExecute to gate a call. A store error
// leaves the circuit closed so that an unavailable store never halts
// delivery.
func (b *Breaker) IsOpen(ctx context.Context, service string) bool {
	st, err := b.state(ctx, service)
	if err != nil {
		b.logger.Warn("circuit state unavailable",
			slog.String("system", service),
			slog.Any("error", err),
		)
		return false
	}
	return st == StateOpen
}

// CanExecute reports whether a call to service may go out now. While
// half_open it admits at most HalfOpenMaxCalls trial calls; a slot left
// without an outcome is released after Timeout.
func (b *Breaker) CanExecute(ctx context.Context, service string) bool {
	st, err := b.state(ctx, service)
	if err != nil {
		b.logger.Warn("circuit state unavailable",
			slog.String("system", service),
			slog.Any("error", err),
		)
		return true
	}

	switch st {
	case StateOpen:
		return false
	case StateHalfOpen:
		n, err := b.store.Incr(ctx, key(service, "trials"), b.cfg.Timeout)
		if err != nil {
			b.logger.Warn("half_open admission failed", slog.String("system", service), slog.Any("error", err))
			return true
		}
		return n <= int64(b.cfg.HalfOpenMaxCalls)
	default:
		return true
	}
}

func (b *Breaker) trip(ctx context.Context, service string, from State) {
	err := b.store.Apply(ctx,
		map[string]string{
			key(service, "state"):     string(StateOpen),
			key(service, "opened_at"): strconv.FormatInt(b.now().UnixNano(), 10),
		},
		[]string{key(service, "failures"), key(service, "successes"), key(service, "trials")},
	)
	if err != nil {
		b.logger.Error("failed to open circuit", slog.String("system", service), slog.Any("error", err))
		return
	}
	b.transitioned(service, from, StateOpen)
}

func (b *Breaker) RecordFailure(ctx context.Context, service string) {
	st, err := b.state(ctx, service)
	if err != nil {
		b.logger.Warn("record failure: circuit state unavailable", slog.String("system", service), slog.Any("error", err))
		return
	}

	switch st {
	case StateHalfOpen:
		b.trip(ctx, service, StateHalfOpen)
	case StateClosed:
		n, err := b.store.Incr(ctx, key(service, "failures"), b.cfg.FailureWindow)
		if err != nil {
			b.logger.Warn("record failure: increment failed", slog.String("system", service), slog.Any("error", err))
			return
		}
		if n >= int64(b.cfg.FailureThreshold) {
			b.trip(ctx, service, StateClosed)
		}
	}
}

func (b *Breaker) RecordSuccess(ctx context.Context, service string) {
	st, err := b.state(ctx, service)
	if err != nil {
		b.logger.Warn("record success: circuit state unavailable", slog.String("system", service), slog.Any("error", err))
		return
	}
	if st != StateHalfOpen {
		return
	}

	n, err := b.store.Incr(ctx, key(service, "successes"), 0)
	if err != nil {
		b.logger.Warn("record success: increment failed", slog.String("system", service), slog.Any("error", err))
		return
	}
	if n < int64(b.cfg.SuccessThreshold) {
		return
	}

	swapped, err := b.store.CompareAndSwap(ctx, key(service, "state"), string(StateHalfOpen), string(StateClosed))
	if err != nil || !swapped {
		return
	}
	if err := b.store.Apply(ctx, nil, []string{
		key(service, "failures"),
		key(service, "successes"),
		key(service, "trials"),
		key(service, "opened_at"),
	}); err != nil {
		b.logger.Warn("close circuit: clearing counters failed", slog.String("system", service), slog.Any("error", err))
	}
	b.transitioned(service, StateHalfOpen, StateClosed)
}

// Reset forces the circuit closed from any state.
func (b *Breaker) Reset(ctx context.Context, service string) error {
	from, _ := b.state(ctx, service)
	err := b.store.Apply(ctx,
		map[string]string{key(service, "state"): string(StateClosed)},
		[]string{key(service, "failures"), key(service, "successes"), key(service, "trials"), key(service, "opened_at")},
	)
	if err != nil {
		return err
	}
	if from != StateClosed {
		b.transitioned(service, from, StateClosed)
	}
	return nil
}

func (b *Breaker) Status(ctx context.Context, service string) Status {
	st, err := b.state(ctx, service)
	if err != nil {
		b.logger.Warn("circuit status unavailable", slog.String("system", service), slog.Any("error", err))
	}
	openedAt, _ := b.openedAt(ctx, service)

	return Status{
		Service:      service,
		State:        st,
		FailureCount: b.counter(ctx, service, "failures"),
		SuccessCount: b.counter(ctx, service, "successes"),
		Threshold:    b.cfg.FailureThreshold,
		OpenedAt:     openedAt,
	}
}

func (b *Breaker) StatusAll(ctx context.Context, services []string) []Status {
	out := make([]Status, 0, len(services))
	for _, s := range services {
		out = append(out, b.Status(ctx, s))
	}
	return out
}
