package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"dispatch/internal/domain"
)

// Config holds the resilience knobs of a Client.
type Config struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	PollInterval         time.Duration
	MinMovementM         float64
	BearingSmoothing     float64
}

func (c *Config) defaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MinMovementM < 0 {
		c.MinMovementM = 0
	}
}

// Client follows one ride. It prefers the push channel, polls while the
// channel is down, and gives up reconnecting after MaxReconnectAttempts
// until Reconnect is called.
type Client struct {
	rideID   string
	dialer   Dialer
	poller   Poller
	cfg      Config
	onUpdate func(domain.LocationSample)

	sm *StateMachine

	// deliverMu serializes filtering and the onUpdate callback.
	deliverMu sync.Mutex
	filter    *Filter
	smoother  *BearingSmoother

	reconnect chan struct{}

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewClient creates a Client. onUpdate receives accepted samples with the
// smoothed bearing; onState, which may be nil, observes state changes.
func NewClient(rideID string, dialer Dialer, poller Poller, cfg Config, onUpdate func(domain.LocationSample), onState func(from, to State)) *Client {
	cfg.defaults()
	return &Client{
		rideID:    rideID,
		dialer:    dialer,
		poller:    poller,
		cfg:       cfg,
		onUpdate:  onUpdate,
		sm:        NewStateMachine(onState),
		filter:    NewFilter(cfg.MinMovementM),
		smoother:  NewBearingSmoother(cfg.BearingSmoothing),
		reconnect: make(chan struct{}, 1),
	}
}

// State returns the current connectivity state.
func (c *Client) State() State {
	return c.sm.State()
}

// Reconnect asks a client that gave up to try the push channel again. It
// also cuts a pending retry delay short. It never blocks.
func (c *Client) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// Run follows the ride until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.transition(StateReconnecting)
	c.startPolling(ctx)

	defer func() {
		c.stopPolling()
		c.transition(StateDisconnected)
	}()

	attempts := 0
	for {
		stream, err := c.dialer.Dial(ctx, c.rideID)
		if err == nil {
			// Polling must be fully stopped before push updates flow.
			c.stopPolling()
			c.transition(StateConnected)
			attempts = 0

			err = c.consume(ctx, stream)
			stream.Close()
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[TRACKING] Push channel for ride %s lost: %v", c.rideID, err)
			c.transition(StateReconnecting)
			c.startPolling(ctx)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		attempts++
		log.Printf("[TRACKING] Connect attempt %d/%d for ride %s failed: %v", attempts, c.cfg.MaxReconnectAttempts, c.rideID, err)

		if attempts >= c.cfg.MaxReconnectAttempts {
			c.transition(StatePolling)
			select {
			case <-ctx.Done():
				return nil
			case <-c.reconnect:
			}
			attempts = 0
			c.transition(StateReconnecting)
			continue
		}

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-c.reconnect:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Client) consume(ctx context.Context, stream Stream) error {
	for {
		sample, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		c.deliver(sample)
	}
}

func (c *Client) deliver(sample domain.LocationSample) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if !c.filter.Accept(sample) {
		return
	}
	sample.Bearing = c.smoother.Next(sample.Bearing)
	if c.onUpdate != nil {
		c.onUpdate(sample)
	}
}

func (c *Client) startPolling(ctx context.Context) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()

		for {
			c.pollOnce(pollCtx)
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (c *Client) pollOnce(ctx context.Context) {
	sample, err := c.poller.Poll(ctx, c.rideID)
	if err != nil {
		if !errors.Is(err, ErrNoLocation) && ctx.Err() == nil {
			log.Printf("[TRACKING] Poll for ride %s failed: %v", c.rideID, err)
		}
		return
	}
	// A poll that raced with stopPolling must not be shown.
	if ctx.Err() != nil {
		return
	}
	c.deliver(sample)
}

// stopPolling cancels the poller and waits for it to exit.
func (c *Client) stopPolling() {
	c.pollMu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.pollMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// polling reports whether the poller goroutine is running.
func (c *Client) polling() bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.pollCancel != nil
}

func (c *Client) transition(to State) {
	if err := c.sm.Transition(to); err != nil {
		log.Printf("[TRACKING] %v", err)
	}
}
