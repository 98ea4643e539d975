package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

// RoomChannel is the Pub/Sub channel carrying room events between instances.
const RoomChannel = "dispatch:rooms"

// Deliverer hands an event to the sockets connected to this instance.
type Deliverer interface {
	Deliver(evt domain.Event)
}

// RoomBus fans room events out to every instance through Redis Pub/Sub.
// Each instance, including the publisher, delivers what it receives locally.
type RoomBus struct {
	client *redis.Client
	local  Deliverer
}

// NewRoomBus creates a RoomBus delivering received events to local.
func NewRoomBus(client *redis.Client, local Deliverer) *RoomBus {
	return &RoomBus{client: client, local: local}
}

// Publish sends the event to all instances. When Redis is unreachable the
// event is still delivered to local subscribers.
func (b *RoomBus) Publish(ctx context.Context, evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[REALTIME] Failed to encode %s event: %v", evt.Type, err)
		return
	}

	if err := b.client.Publish(ctx, RoomChannel, data).Err(); err != nil {
		log.Printf("[REALTIME] Redis publish failed for %s, delivering locally: %v", evt.Room.Key(), err)
		b.local.Deliver(evt)
	}
}

// Run consumes the channel until ctx is cancelled.
func (b *RoomBus) Run(ctx context.Context) {
	sub := b.client.Subscribe(ctx, RoomChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("[REALTIME] Dropping malformed room message: %v", err)
				continue
			}
			b.local.Deliver(evt)
		}
	}
}
