package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"dispatch/internal/domain"
)

// LocationSender delivers one technician sample to the server.
type LocationSender interface {
	SendLocation(ctx context.Context, sample domain.LocationSample) error
}

// Sender ships technician samples without ever blocking the producer. Only
// the latest unsent sample is kept; older ones are overwritten. Each sample
// goes over the push channel, or over HTTP when the push send fails.
type Sender struct {
	push     LocationSender
	fallback LocationSender
	timeout  time.Duration

	mu     sync.Mutex
	latest *domain.LocationSample
	signal chan struct{}
}

// NewSender creates a Sender. push may be nil to always use fallback.
func NewSender(push, fallback LocationSender, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{
		push:     push,
		fallback: fallback,
		timeout:  timeout,
		signal:   make(chan struct{}, 1),
	}
}

// Offer replaces the pending sample. It never blocks.
func (s *Sender) Offer(sample domain.LocationSample) {
	s.mu.Lock()
	s.latest = &sample
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Run sends pending samples until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		sample, ok := s.take()
		if !ok {
			continue
		}
		s.send(ctx, sample)
	}
}

func (s *Sender) take() (domain.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return domain.LocationSample{}, false
	}
	sample := *s.latest
	s.latest = nil
	return sample, true
}

func (s *Sender) send(ctx context.Context, sample domain.LocationSample) {
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.push != nil {
		err := s.push.SendLocation(sendCtx, sample)
		if err == nil {
			return
		}
		log.Printf("[TRACKING] Push send for ride %s failed, falling back to HTTP: %v", sample.RideID, err)
	}
	if s.fallback == nil {
		return
	}
	if err := s.fallback.SendLocation(sendCtx, sample); err != nil {
		// Dropped on purpose: a newer sample will supersede it.
		log.Printf("[TRACKING] HTTP send for ride %s failed: %v", sample.RideID, err)
	}
}
