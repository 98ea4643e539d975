package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain"
)

func decode(t *testing.T, data []byte) domain.Event {
	t.Helper()
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return evt
}

func drain(c *Conn) []domain.Event {
	var out []domain.Event
	for {
		select {
		case data := <-c.Messages():
			var evt domain.Event
			if json.Unmarshal(data, &evt) == nil {
				out = append(out, evt)
			}
		default:
			return out
		}
	}
}

func TestHub_DeliversOnlyToRoomMembers(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	watcher := NewConn(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, 8)
	bystander := NewConn(domain.Principal{UserID: "cust-2", Role: domain.RoleCustomer}, 8)
	hub.Register(watcher)
	hub.Register(bystander)
	hub.Join(watcher, domain.RideRoom("r1"))

	hub.Deliver(domain.Event{Type: domain.EventLocationUpdate, Room: domain.RideRoom("r1"), RideID: "r1", At: time.Now()})

	got := drain(watcher)
	if len(got) != 1 || got[0].Type != domain.EventLocationUpdate {
		t.Fatalf("expected 1 location_update, got %+v", got)
	}
	if n := len(drain(bystander)); n != 0 {
		t.Errorf("non-member received %d events", n)
	}
}

func TestHub_EvictControlEvent(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	room := domain.RideRoom("r1")
	former := NewConn(domain.Principal{UserID: "tech-1", Role: domain.RoleTechnician}, 8)
	customer := NewConn(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, 8)
	hub.Register(former)
	hub.Register(customer)
	hub.Join(former, room)
	hub.Join(former, domain.UserRoom("tech-1"))
	hub.Join(customer, room)

	hub.Deliver(domain.RoomEvictEvent(room, "tech-1"))
	if n := hub.RoomSize(room); n != 1 {
		t.Fatalf("expected 1 member left, got %d", n)
	}
	if n := hub.RoomSize(domain.UserRoom("tech-1")); n != 1 {
		t.Errorf("eviction must not touch other rooms, user room size %d", n)
	}
	if got := drain(former); len(got) != 0 {
		t.Errorf("control events are not sent to clients, got %+v", got)
	}

	hub.Deliver(domain.Event{Type: domain.EventLocationUpdate, Room: room, RideID: "r1", At: time.Now()})
	if n := len(drain(former)); n != 0 {
		t.Errorf("evicted member received %d events", n)
	}
	if n := len(drain(customer)); n != 1 {
		t.Errorf("remaining member expected 1 event, got %d", n)
	}

	hub.Deliver(domain.RoomEvictEvent(room, ""))
	if n := hub.RoomSize(room); n != 0 {
		t.Errorf("expected closed room, got %d members", n)
	}
	if n := hub.Evict(room, ""); n != 0 {
		t.Errorf("evicting a closed room removed %d", n)
	}
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c := NewConn(domain.Principal{UserID: "tech-1", Role: domain.RoleTechnician}, 8)
	hub.Register(c)
	hub.Join(c, domain.RideRoom("r1"))
	hub.Join(c, domain.UserRoom("tech-1"))

	if n := hub.RoomSize(domain.RideRoom("r1")); n != 1 {
		t.Fatalf("expected room size 1, got %d", n)
	}

	hub.Leave(c, domain.RideRoom("r1"))
	if n := hub.RoomSize(domain.RideRoom("r1")); n != 0 {
		t.Errorf("expected empty ride room after leave, got %d", n)
	}

	hub.Unregister(c)
	if n := hub.RoomSize(domain.UserRoom("tech-1")); n != 0 {
		t.Errorf("expected user room cleared on unregister, got %d", n)
	}
	if n := hub.ConnCount(); n != 0 {
		t.Errorf("expected no connections, got %d", n)
	}

	// Unregistering twice is harmless.
	hub.Unregister(c)
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c := NewConn(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, 8)

	hub.Join(c, domain.RideRoom("r1"))

	if n := hub.RoomSize(domain.RideRoom("r1")); n != 0 {
		t.Errorf("unregistered connection joined a room")
	}
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	slow := NewConn(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, 2)
	hub.Register(slow)
	hub.Join(slow, domain.AdminRoom())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Deliver(domain.Event{Type: domain.EventGlobalLocationUpdate, Room: domain.AdminRoom(), At: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver blocked on a full buffer")
	}
	if n := len(drain(slow)); n != 2 {
		t.Errorf("expected the 2 buffered events, got %d", n)
	}
}

func TestHub_ClosedConnReceivesNothing(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c := NewConn(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, 8)
	hub.Register(c)
	hub.Join(c, domain.UserRoom("cust-1"))
	c.Close()
	c.Close()

	hub.Publish(context.Background(), domain.Event{Type: domain.EventArrivalOTP, Room: domain.UserRoom("cust-1")})

	if n := len(drain(c)); n != 0 {
		t.Errorf("closed connection received %d events", n)
	}
}

func TestHub_ConcurrentJoinDeliver(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	room := domain.RideRoom("r1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewConn(domain.Principal{UserID: "viewer", Role: domain.RoleCustomer}, 4)
			hub.Register(c)
			hub.Join(c, room)
			hub.Deliver(domain.Event{Type: domain.EventLocationUpdate, Room: room})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if n := hub.RoomSize(room); n != 0 {
		t.Errorf("expected empty room, got %d", n)
	}
}
