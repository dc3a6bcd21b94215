package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/intercom/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ReauthInterval     = time.Hour
	ReauthMaxRetries   = 3
	ReauthInitialDelay = time.Second
)

var ErrReauthFailed = errors.New("failed to reauth")

// ConnectedCalls reports whether live media signaling is in progress.
type ConnectedCalls interface {
	HasConnected() bool
}

type ReauthOption func(*ReauthController)

func WithReauthInterval(d time.Duration) ReauthOption {
	return func(c *ReauthController) { c.interval = d }
}

func WithReauthScheduler(sched core.Scheduler) ReauthOption {
	return func(c *ReauthController) { c.sched = sched }
}

func WithOnlineSignal(sig core.OnlineSignal) ReauthOption {
	return func(c *ReauthController) { c.online = sig }
}

// WithRetryTimer replaces the timer used between refresh attempts.
func WithRetryTimer(newTimer func() backoff.Timer) ReauthOption {
	return func(c *ReauthController) { c.newTimer = newTimer }
}

// ReauthController refreshes the session credential on a fixed cadence and
// whenever connectivity comes back, but never while a call is connected.
type ReauthController struct {
	refresher core.Refresher
	calls     ConnectedCalls
	sink      core.ErrorSink
	sched     core.Scheduler
	online    core.OnlineSignal
	interval  time.Duration
	newTimer  func() backoff.Timer
	log       zerolog.Logger

	mu          sync.Mutex
	ticker      core.Timer
	unsubscribe func()
	cancel      context.CancelFunc

	// attempts are strictly sequential
	tickMu sync.Mutex
}

func NewReauthController(refresher core.Refresher, calls ConnectedCalls, sink core.ErrorSink, opts ...ReauthOption) *ReauthController {
	c := &ReauthController{
		refresher: refresher,
		calls:     calls,
		sink:      sink,
		sched:     core.SystemScheduler(),
		interval:  ReauthInterval,
		log:       log.With().Str("module", "app.reauth").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start installs the recurring refresh and the online listener, replacing
// any previous installation. The returned func tears both down.
func (c *ReauthController) Start() (teardown func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.ticker = c.sched.Every(c.interval, func() { _ = c.Tick(ctx) })
	if c.online != nil {
		c.unsubscribe = c.online.Subscribe(func() { _ = c.Tick(ctx) })
	}
	c.log.Info().Dur("interval", c.interval).Msg("token refresh scheduled")
	return c.Stop
}

// Running reports whether an installation from Start is active.
func (c *ReauthController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

func (c *ReauthController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *ReauthController) stopLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Tick performs one refresh cycle: up to 1+ReauthMaxRetries attempts with
// doubling delays. An expected-transient failure ends the cycle silently.
// Exhausted retries are reported once to the error sink.
func (c *ReauthController) Tick(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if c.calls.HasConnected() {
		c.log.Debug().Msg("call connected, deferring token refresh")
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(ReauthInitialDelay),
				backoff.WithRandomizationFactor(0),
				backoff.WithMultiplier(2),
				backoff.WithMaxElapsedTime(0),
			),
			ReauthMaxRetries,
		),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		err := c.refresher.Refresh(ctx)
		if errors.Is(err, core.ErrExpectedTransient) {
			c.log.Debug().Err(err).Msg("prior token still valid, skipping refresh")
			return nil
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn().Err(err).Int("attempt", attempt).Int64("retry_in_ms", next.Milliseconds()).Msg("token refresh failed, retrying")
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(op, policy, notify, timer)
	if err == nil {
		c.log.Debug().Int("attempts", attempt).Msg("token refreshed")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err = fmt.Errorf("%w: %w", ErrReauthFailed, err)
	if c.sink != nil {
		c.sink.Report(err)
	}
	return err
}
