package service

import (
	"context"
	"log"
	"time"

	"dispatch/internal/domain"
)

// Notification is a push message for one user's devices.
type Notification struct {
	Title   string
	Message string
	Data    map[string]string
}

// PushNotifier delivers push notifications to a user's devices.
type PushNotifier interface {
	SendToUser(ctx context.Context, userID string, n Notification) error
}

// EventPublisher delivers room events to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

// EventBroker mirrors lifecycle events to external consumers.
type EventBroker interface {
	PublishEvent(ctx context.Context, evt domain.Event) error
}

// LogPushNotifier is a PushNotifier that only logs.
type LogPushNotifier struct{}

// SendToUser logs the notification.
func (LogPushNotifier) SendToUser(ctx context.Context, userID string, n Notification) error {
	log.Printf("[NOTIFICATION] Recipient=%s, Title=%s, Message=%s", userID, n.Title, n.Message)
	return nil
}

// NotificationService turns ride transitions into room events, push
// notifications and broker messages. OTP values only ever travel on the
// customer's private room.
type NotificationService struct {
	publisher EventPublisher
	push      PushNotifier
	broker    EventBroker
}

// NewNotificationService creates a new NotificationService. broker may be nil.
func NewNotificationService(publisher EventPublisher, push PushNotifier, broker EventBroker) *NotificationService {
	if push == nil {
		push = LogPushNotifier{}
	}
	return &NotificationService{
		publisher: publisher,
		push:      push,
		broker:    broker,
	}
}

// RideAccepted announces the assignment and hands the arrival OTP to the customer.
func (s *NotificationService) RideAccepted(ctx context.Context, ride *domain.Ride) {
	s.emit(ctx, ride, domain.EventRideAccepted)
	s.sendOTP(ctx, ride, domain.EventArrivalOTP, ride.ArrivalOTP, false)
	s.notify(ctx, ride.CustomerID, Notification{
		Title:   "Technician on the way",
		Message: "A technician accepted your request",
		Data:    map[string]string{"ride_id": ride.ID},
	})
}

// TechnicianArrived announces a verified arrival.
func (s *NotificationService) TechnicianArrived(ctx context.Context, ride *domain.Ride) {
	s.emit(ctx, ride, domain.EventTechnicianArrived)
	s.notify(ctx, ride.CustomerID, Notification{
		Title:   "Technician arrived",
		Message: "Your technician has arrived",
		Data:    map[string]string{"ride_id": ride.ID},
	})
}

// ServiceStarted announces that work began.
func (s *NotificationService) ServiceStarted(ctx context.Context, ride *domain.Ride) {
	s.emit(ctx, ride, domain.EventServiceStarted)
}

// ServiceEnded announces the end of work. The completion OTP goes to the
// customer now, or a payment request does when payment is still owed.
func (s *NotificationService) ServiceEnded(ctx context.Context, ride *domain.Ride, order *domain.PaymentOrder) {
	s.emit(ctx, ride, domain.EventServiceEnded)

	if ride.CompletionOTPReleased() {
		s.sendOTP(ctx, ride, domain.EventCompletionOTP, ride.CompletionOTP, false)
		return
	}

	payload := map[string]any{"amount": ride.Price}
	if order != nil {
		payload["order_id"] = order.ID
		payload["gateway_order_id"] = order.GatewayOrderID
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:    domain.EventPaymentDue,
		Room:    domain.UserRoom(ride.CustomerID),
		RideID:  ride.ID,
		Payload: payload,
		At:      time.Now(),
	})
	s.notify(ctx, ride.CustomerID, Notification{
		Title:   "Payment due",
		Message: "Please complete the payment to finish your service",
		Data:    map[string]string{"ride_id": ride.ID},
	})
}

// PaymentConfirmed announces the payment and releases a withheld completion OTP.
func (s *NotificationService) PaymentConfirmed(ctx context.Context, ride *domain.Ride) {
	s.emit(ctx, ride, domain.EventPaymentConfirmed)
	if ride.CompletionOTPReleased() {
		s.sendOTP(ctx, ride, domain.EventCompletionOTP, ride.CompletionOTP, false)
	}
}

// RideCompleted announces completion and closes the ride room.
func (s *NotificationService) RideCompleted(ctx context.Context, ride *domain.Ride) {
	s.emit(ctx, ride, domain.EventRideCompleted)
	s.publisher.Publish(ctx, domain.RoomEvictEvent(domain.RideRoom(ride.ID), ""))
	s.notify(ctx, ride.CustomerID, Notification{
		Title:   "Service completed",
		Message: "Your service has been completed",
		Data:    map[string]string{"ride_id": ride.ID},
	})
}

// RideCancelled announces a customer cancellation to the assigned technician
// and closes the ride room.
func (s *NotificationService) RideCancelled(ctx context.Context, ride *domain.Ride, technicianID string) {
	s.emit(ctx, ride, domain.EventRideCancelled)
	s.publisher.Publish(ctx, domain.RoomEvictEvent(domain.RideRoom(ride.ID), ""))
	if technicianID != "" {
		s.notify(ctx, technicianID, Notification{
			Title:   "Job cancelled",
			Message: "The customer cancelled the job",
			Data:    map[string]string{"ride_id": ride.ID, "reason": ride.CancelReason},
		})
	}
}

// RideRequeued announces that the technician dropped the job and it is
// offered again. The former technician is removed from the ride room and
// told on their private room.
func (s *NotificationService) RideRequeued(ctx context.Context, ride *domain.Ride, formerTechnicianID string) {
	s.emit(ctx, ride, domain.EventRideRequeued)
	if formerTechnicianID != "" {
		s.publisher.Publish(ctx, domain.RoomEvictEvent(domain.RideRoom(ride.ID), formerTechnicianID))
		s.publisher.Publish(ctx, domain.Event{
			Type:    domain.EventRideRequeued,
			Room:    domain.UserRoom(formerTechnicianID),
			RideID:  ride.ID,
			Payload: ridePayload(ride),
			At:      time.Now(),
		})
	}
	s.notify(ctx, ride.CustomerID, Notification{
		Title:   "Finding another technician",
		Message: "Your technician cancelled, we are finding you another one",
		Data:    map[string]string{"ride_id": ride.ID},
	})
}

// OTPReissued delivers a regenerated OTP, subject to the reveal policy.
func (s *NotificationService) OTPReissued(ctx context.Context, ride *domain.Ride, kind domain.EventType) {
	switch kind {
	case domain.EventArrivalOTP:
		s.sendOTP(ctx, ride, domain.EventArrivalOTP, ride.ArrivalOTP, true)
	case domain.EventCompletionOTP:
		if ride.CompletionOTPReleased() {
			s.sendOTP(ctx, ride, domain.EventCompletionOTP, ride.CompletionOTP, true)
		}
	}
}

func (s *NotificationService) emit(ctx context.Context, ride *domain.Ride, typ domain.EventType) {
	evt := domain.Event{
		Type:    typ,
		Room:    domain.RideRoom(ride.ID),
		RideID:  ride.ID,
		Payload: ridePayload(ride),
		At:      time.Now(),
	}
	s.publisher.Publish(ctx, evt)

	if s.broker != nil && typ.IsLifecycle() {
		if err := s.broker.PublishEvent(ctx, evt); err != nil {
			log.Printf("[RIDE] Failed to mirror %s for ride %s: %v", typ, ride.ID, err)
		}
	}
}

func (s *NotificationService) sendOTP(ctx context.Context, ride *domain.Ride, typ domain.EventType, otp string, reissued bool) {
	if otp == "" {
		return
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:   typ,
		Room:   domain.UserRoom(ride.CustomerID),
		RideID: ride.ID,
		Payload: map[string]any{
			"otp":      otp,
			"reissued": reissued,
		},
		At: time.Now(),
	})
	if reissued {
		s.publisher.Publish(ctx, domain.Event{
			Type:    domain.EventOTPReissued,
			Room:    domain.RideRoom(ride.ID),
			RideID:  ride.ID,
			Payload: map[string]any{"kind": string(typ)},
			At:      time.Now(),
		})
	}
}

func (s *NotificationService) notify(ctx context.Context, userID string, n Notification) {
	if err := s.push.SendToUser(ctx, userID, n); err != nil {
		log.Printf("[NOTIFICATION] Push to %s failed: %v", userID, err)
	}
}

// ridePayload is the OTP-free ride summary carried by lifecycle events.
func ridePayload(ride *domain.Ride) map[string]any {
	return map[string]any{
		"ride_id":        ride.ID,
		"status":         ride.Status,
		"technician_id":  ride.TechnicianID,
		"payment_status": ride.PaymentStatus,
		"cancel_reason":  ride.CancelReason,
		"cancelled_by":   ride.CancelledBy,
	}
}
