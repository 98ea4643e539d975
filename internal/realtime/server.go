package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dispatch/internal/domain"
)

// Client message types.
const (
	MessageJoinRide     = "join_ride"
	MessageLeaveRide    = "leave_ride"
	MessageSendLocation = "send_location"
)

// MessageLocationAck reports whether a send_location sample was accepted.
const MessageLocationAck = "location_ack"

// ClientMessage is a message sent by a client over the socket.
type ClientMessage struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id"`
	Lat       float64   `json:"lat,omitempty"`
	Lng       float64   `json:"lng,omitempty"`
	Bearing   float64   `json:"bearing,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// LocationService is what the socket needs from location distribution.
type LocationService interface {
	SetLocation(ctx context.Context, technicianID string, sample domain.LocationSample) (bool, error)
	GetLocation(ctx context.Context, rideID string, viewer domain.Principal) (*domain.LocationSample, error)
	AuthorizeWatch(ctx context.Context, rideID string, viewer domain.Principal) error
}

// ErrorCoder is implemented by errors that carry a stable code.
type ErrorCoder interface {
	error
	Code() string
}

// Config holds socket timing.
type Config struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

func (c *Config) defaults() {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// Server upgrades authenticated requests to sockets attached to the Hub.
type Server struct {
	hub       *Hub
	locations LocationService
	upgrader  websocket.Upgrader
	cfg       Config
}

// NewServer creates a new Server.
func NewServer(hub *Hub, locations LocationService, cfg Config) *Server {
	cfg.defaults()
	return &Server{
		hub:       hub,
		locations: locations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by CORS and the bearer token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

// Serve upgrades the request and blocks until the socket closes.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, principal domain.Principal) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[REALTIME] Upgrade failed for %s: %v", principal.UserID, err)
		return
	}

	conn := NewConn(principal, s.cfg.SendBuffer)
	s.hub.Register(conn)
	s.hub.Join(conn, domain.UserRoom(principal.UserID))
	if principal.IsAdmin() {
		s.hub.Join(conn, domain.AdminRoom())
	}
	log.Printf("[REALTIME] %s %s connected", principal.Role, principal.UserID)

	go s.writePump(ws, conn)
	s.readPump(r.Context(), ws, conn)
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
		ws.Close()
		log.Printf("[REALTIME] %s disconnected", conn.principal.UserID)
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[REALTIME] Read error for %s: %v", conn.principal.UserID, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.replyError(conn, "", "VALIDATION_ERROR", "malformed message")
			continue
		}
		s.handle(ctx, conn, msg)
	}
}

func (s *Server) handle(ctx context.Context, conn *Conn, msg ClientMessage) {
	switch msg.Type {
	case MessageJoinRide:
		if err := s.locations.AuthorizeWatch(ctx, msg.RideID, conn.principal); err != nil {
			s.replyErr(conn, msg.RideID, err)
			return
		}
		s.hub.Join(conn, domain.RideRoom(msg.RideID))

		// Hydrate the new subscriber with the current position.
		sample, err := s.locations.GetLocation(ctx, msg.RideID, conn.principal)
		if err == nil && sample != nil {
			s.reply(conn, domain.Event{
				Type:   domain.EventLocationUpdate,
				Room:   domain.RideRoom(msg.RideID),
				RideID: msg.RideID,
				Payload: map[string]any{
					"ride_id":   sample.RideID,
					"lat":       sample.Lat,
					"lng":       sample.Lng,
					"bearing":   sample.Bearing,
					"speed":     sample.Speed,
					"timestamp": sample.Timestamp,
				},
				At: time.Now(),
			})
		}

	case MessageLeaveRide:
		s.hub.Leave(conn, domain.RideRoom(msg.RideID))

	case MessageSendLocation:
		if conn.principal.Role != domain.RoleTechnician {
			s.replyError(conn, msg.RideID, "FORBIDDEN", "only technicians send locations")
			return
		}
		accepted, err := s.locations.SetLocation(ctx, conn.principal.UserID, domain.LocationSample{
			RideID:    msg.RideID,
			Lat:       msg.Lat,
			Lng:       msg.Lng,
			Bearing:   msg.Bearing,
			Speed:     msg.Speed,
			Accuracy:  msg.Accuracy,
			Timestamp: msg.Timestamp,
		})
		if err != nil {
			s.replyErr(conn, msg.RideID, err)
			return
		}
		s.reply(conn, domain.Event{
			Type:    MessageLocationAck,
			RideID:  msg.RideID,
			Payload: map[string]any{"accepted": accepted},
			At:      time.Now(),
		})

	default:
		s.replyError(conn, msg.RideID, "VALIDATION_ERROR", "unknown message type")
	}
}

func (s *Server) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-conn.Messages():
			ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[REALTIME] Write failed for %s: %v", conn.principal.UserID, err)
				conn.Close()
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Server) reply(conn *Conn, evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if !conn.enqueue(data) {
		log.Printf("[REALTIME] Send buffer full for %s, dropped reply %s", conn.principal.UserID, evt.Type)
	}
}

func (s *Server) replyErr(conn *Conn, rideID string, err error) {
	code := "INTERNAL_ERROR"
	var coder ErrorCoder
	if errors.As(err, &coder) {
		code = coder.Code()
	}
	s.replyError(conn, rideID, code, err.Error())
}

func (s *Server) replyError(conn *Conn, rideID, code, message string) {
	s.reply(conn, domain.Event{
		Type:    domain.EventError,
		RideID:  rideID,
		Payload: map[string]any{"code": code, "message": message},
		At:      time.Now(),
	})
}
