package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/domain"
)

type fakeStream struct {
	samples chan domain.LocationSample
	fail    chan error
	closed  atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		samples: make(chan domain.LocationSample, 8),
		fail:    make(chan error, 1),
	}
}

func (s *fakeStream) Next(ctx context.Context) (domain.LocationSample, error) {
	select {
	case <-ctx.Done():
		return domain.LocationSample{}, ctx.Err()
	case sample := <-s.samples:
		return sample, nil
	case err := <-s.fail:
		return domain.LocationSample{}, err
	}
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeDialer fails until up is set, then hands out the queued streams.
type fakeDialer struct {
	mu      sync.Mutex
	up      bool
	streams []*fakeStream
	calls   int32
}

func (d *fakeDialer) setUp(up bool, streams ...*fakeStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.up = up
	d.streams = append(d.streams, streams...)
}

func (d *fakeDialer) Dial(ctx context.Context, rideID string) (Stream, error) {
	atomic.AddInt32(&d.calls, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up || len(d.streams) == 0 {
		return nil, errors.New("connection refused")
	}
	s := d.streams[0]
	d.streams = d.streams[1:]
	return s, nil
}

type fakePoller struct {
	calls  int32
	sample domain.LocationSample
}

func (p *fakePoller) Poll(ctx context.Context, rideID string) (domain.LocationSample, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.sample.Timestamp.IsZero() {
		return domain.LocationSample{}, ErrNoLocation
	}
	return p.sample, nil
}

func (p *fakePoller) count() int32 {
	return atomic.LoadInt32(&p.calls)
}

type updates struct {
	mu  sync.Mutex
	got []domain.LocationSample
}

func (u *updates) add(s domain.LocationSample) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.got = append(u.got, s)
}

func (u *updates) len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.got)
}

func (u *updates) last() domain.LocationSample {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.got[len(u.got)-1]
}

func fastConfig() Config {
	return Config{
		MaxReconnectAttempts: 3,
		ReconnectDelay:       5 * time.Millisecond,
		PollInterval:         5 * time.Millisecond,
	}
}

func runClient(t *testing.T, c *Client) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestClient_GivesUpAndPollsUntilReconnect(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	poller := &fakePoller{sample: domain.LocationSample{RideID: "r1", Lat: 12.97, Timestamp: time.Now()}}
	got := &updates{}
	c := NewClient("r1", dialer, poller, fastConfig(), got.add, nil)

	stop := runClient(t, c)
	defer stop()

	waitFor(t, "POLLING", func() bool { return c.State() == StatePolling })
	if n := atomic.LoadInt32(&dialer.calls); n != 3 {
		t.Errorf("expected 3 dial attempts before giving up, got %d", n)
	}
	if !c.polling() {
		t.Fatal("poller must run in POLLING")
	}
	waitFor(t, "a polled update", func() bool { return got.len() > 0 })

	// No further dials until asked.
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&dialer.calls); n != 3 {
		t.Errorf("client kept dialing after giving up: %d calls", n)
	}

	stream := newFakeStream()
	dialer.setUp(true, stream)
	c.Reconnect()

	waitFor(t, "CONNECTED", func() bool { return c.State() == StateConnected })
	if c.polling() {
		t.Error("poller must be stopped once connected")
	}

	before := poller.count()
	time.Sleep(30 * time.Millisecond)
	if after := poller.count(); after != before {
		t.Errorf("poller ran %d times while connected", after-before)
	}
}

func TestClient_ConnectedDeliversFilteredUpdates(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	dialer := &fakeDialer{}
	dialer.setUp(true, stream)
	poller := &fakePoller{}

	cfg := fastConfig()
	cfg.PollInterval = time.Hour
	cfg.MinMovementM = 10
	got := &updates{}
	c := NewClient("r1", dialer, poller, cfg, got.add, nil)

	stop := runClient(t, c)
	defer stop()

	waitFor(t, "CONNECTED", func() bool { return c.State() == StateConnected })

	now := time.Now()
	stream.samples <- domain.LocationSample{RideID: "r1", Lat: 12.9700, Lng: 77.59, Bearing: 350, Timestamp: now}
	stream.samples <- domain.LocationSample{RideID: "r1", Lat: 12.9700, Lng: 77.59, Bearing: 0, Timestamp: now.Add(time.Second)}
	stream.samples <- domain.LocationSample{RideID: "r1", Lat: 12.9710, Lng: 77.59, Bearing: 10, Timestamp: now.Add(2 * time.Second)}

	waitFor(t, "two updates", func() bool { return got.len() == 2 })
	time.Sleep(20 * time.Millisecond)
	if n := got.len(); n != 2 {
		t.Fatalf("expected the stationary sample to be filtered, got %d updates", n)
	}
	if b := got.last().Bearing; b != 10 {
		t.Errorf("expected bearing 10 without smoothing, got %v", b)
	}
}

func TestClient_LostStreamPollsUntilReconnected(t *testing.T) {
	t.Parallel()

	first, second := newFakeStream(), newFakeStream()
	dialer := &fakeDialer{}
	dialer.setUp(true, first, second)
	poller := &fakePoller{}

	var (
		mu     sync.Mutex
		states []State
	)
	onState := func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, to)
	}
	connects := func() int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, s := range states {
			if s == StateConnected {
				n++
			}
		}
		return n
	}
	c := NewClient("r1", dialer, poller, fastConfig(), nil, onState)

	stop := runClient(t, c)

	waitFor(t, "CONNECTED", func() bool { return connects() == 1 })
	first.fail <- errors.New("connection reset")
	waitFor(t, "CONNECTED again", func() bool { return connects() == 2 })

	if !first.closed.Load() {
		t.Error("lost stream must be closed")
	}
	if c.polling() {
		t.Error("poller must be stopped once connected")
	}
	// The poller runs at least once in each RECONNECTING phase.
	if n := poller.count(); n < 2 {
		t.Errorf("expected polls during both reconnects, got %d", n)
	}

	stop()
	if c.State() != StateDisconnected {
		t.Errorf("expected DISCONNECTED after Run returns, got %s", c.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateReconnecting, StateConnected, StateReconnecting, StateConnected, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
}
