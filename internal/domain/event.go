package domain

import "time"

// EventType identifies a real-time event delivered to room members.
type EventType string

const (
	EventRideAccepted         EventType = "ride_accepted"
	EventTechnicianArrived    EventType = "technician_arrived"
	EventServiceStarted       EventType = "service_started"
	EventServiceEnded         EventType = "service_ended"
	EventRideCompleted        EventType = "ride_completed"
	EventRideCancelled        EventType = "ride_cancelled"
	EventRideRequeued         EventType = "ride_requeued"
	EventArrivalOTP           EventType = "arrival_otp"
	EventCompletionOTP        EventType = "completion_otp"
	EventOTPReissued          EventType = "otp_reissued"
	EventPaymentDue           EventType = "payment_due"
	EventPaymentConfirmed     EventType = "payment_confirmed"
	EventLocationUpdate       EventType = "location_update"
	EventGlobalLocationUpdate EventType = "global_location_update"
	EventError                EventType = "error"

	// EventRoomEvict is a control event between instances. It removes
	// Payload["user_id"] from the room, or every member when empty, and is
	// never sent to clients.
	EventRoomEvict EventType = "room_evict"
)

// IsLifecycle reports whether the event describes a ride transition, as
// opposed to a location sample or a private OTP delivery.
func (t EventType) IsLifecycle() bool {
	switch t {
	case EventRideAccepted, EventTechnicianArrived, EventServiceStarted, EventServiceEnded,
		EventRideCompleted, EventRideCancelled, EventRideRequeued, EventPaymentConfirmed:
		return true
	}
	return false
}

// RoomKind is the kind of subscriber group an event targets.
type RoomKind string

const (
	RoomRide  RoomKind = "ride"
	RoomUser  RoomKind = "user"
	RoomAdmin RoomKind = "admin"
)

// Room addresses one subscriber group.
type Room struct {
	Kind RoomKind `json:"kind"`
	ID   string   `json:"id,omitempty"`
}

// Key returns a stable string form of the room, e.g. "ride:42".
func (r Room) Key() string {
	if r.ID == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ":" + r.ID
}

// RideRoom is the tracking group of everyone following a ride.
func RideRoom(rideID string) Room { return Room{Kind: RoomRide, ID: rideID} }

// UserRoom is the private group of a single user.
func UserRoom(userID string) Room { return Room{Kind: RoomUser, ID: userID} }

// AdminRoom is the global observation group.
func AdminRoom() Room { return Room{Kind: RoomAdmin} }

// Event is a typed message addressed to one room.
type Event struct {
	Type    EventType      `json:"type"`
	Room    Room           `json:"room"`
	RideID  string         `json:"ride_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// RoomEvictEvent revokes userID's membership of room. An empty userID
// closes the room.
func RoomEvictEvent(room Room, userID string) Event {
	return Event{
		Type:    EventRoomEvict,
		Room:    room,
		Payload: map[string]any{"user_id": userID},
		At:      time.Now(),
	}
}

// EvictedUser returns the user an EventRoomEvict targets.
func (e Event) EvictedUser() string {
	id, _ := e.Payload["user_id"].(string)
	return id
}
