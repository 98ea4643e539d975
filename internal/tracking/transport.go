package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dispatch/internal/domain"
)

// ErrNoLocation is returned by a Poller when the ride has no sample yet.
var ErrNoLocation = errors.New("tracking: no location yet")

// Stream is one live push connection following a ride.
type Stream interface {
	// Next blocks until the next location update for the ride.
	Next(ctx context.Context) (domain.LocationSample, error)
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, rideID string) (Stream, error)
}

// Poller fetches the current location over plain HTTP.
type Poller interface {
	Poll(ctx context.Context, rideID string) (domain.LocationSample, error)
}

// serverEvent is the envelope the realtime server sends.
type serverEvent struct {
	Type    string          `json:"type"`
	RideID  string          `json:"ride_id"`
	Payload json.RawMessage `json:"payload"`
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type clientMessage struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id"`
	Lat       float64   `json:"lat,omitempty"`
	Lng       float64   `json:"lng,omitempty"`
	Bearing   float64   `json:"bearing,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// WSDialer connects to the realtime endpoint, e.g. ws://host/v1/ws.
type WSDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

// Dial connects and joins the ride room.
func (d *WSDialer) Dial(ctx context.Context, rideID string) (Stream, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	s := &wsStream{conn: conn, rideID: rideID}
	if err := s.write(clientMessage{Type: "join_ride", RideID: rideID}); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (d *WSDialer) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return conn, nil
}

type wsStream struct {
	conn   *websocket.Conn
	rideID string
	wmu    sync.Mutex
}

func (s *wsStream) write(msg clientMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

// Next reads until a location update for the ride arrives. Other events are
// skipped; an error event about the ride ends the stream.
func (s *wsStream) Next(ctx context.Context) (domain.LocationSample, error) {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return domain.LocationSample{}, ctx.Err()
			}
			return domain.LocationSample{}, err
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.RideID != s.rideID {
			continue
		}
		switch evt.Type {
		case string(domain.EventLocationUpdate):
			var sample domain.LocationSample
			if err := json.Unmarshal(evt.Payload, &sample); err != nil {
				continue
			}
			return sample, nil
		case string(domain.EventError):
			var e serverError
			_ = json.Unmarshal(evt.Payload, &e)
			return domain.LocationSample{}, fmt.Errorf("server rejected ride %s: %s %s", s.rideID, e.Code, e.Message)
		}
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// WSPusher sends technician samples over the realtime socket. It dials
// lazily and drops the connection on any write error; the next send dials
// again.
type WSPusher struct {
	dialer *WSDialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSPusher creates a pusher using dialer's URL and token.
func NewWSPusher(dialer *WSDialer) *WSPusher {
	return &WSPusher{dialer: dialer}
}

// SendLocation writes one send_location message.
func (p *WSPusher) SendLocation(ctx context.Context, sample domain.LocationSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := p.dialer.connect(ctx)
		if err != nil {
			return err
		}
		p.conn = conn
		// Acks and room events are not needed here, but reading keeps
		// control frames flowing and notices a dead peer.
		go drain(conn)
	}

	p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := p.conn.WriteJSON(clientMessage{
		Type:      "send_location",
		RideID:    sample.RideID,
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		Bearing:   sample.Bearing,
		Speed:     sample.Speed,
		Accuracy:  sample.Accuracy,
		Timestamp: sample.Timestamp,
	})
	if err != nil {
		p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// Close closes the current connection, if any.
func (p *WSPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HTTPClient talks to the REST fallback endpoints.
type HTTPClient struct {
	BaseURL string // e.g. http://host:8080
	Token   string
	Client  *http.Client
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// Poll fetches GET /v1/rides/:id/location.
func (c *HTTPClient) Poll(ctx context.Context, rideID string) (domain.LocationSample, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/rides/"+url.PathEscape(rideID)+"/location", nil)
	if err != nil {
		return domain.LocationSample{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var sample domain.LocationSample
		if err := json.NewDecoder(resp.Body).Decode(&sample); err != nil {
			return domain.LocationSample{}, fmt.Errorf("decode location: %w", err)
		}
		return sample, nil
	case http.StatusNotFound:
		return domain.LocationSample{}, ErrNoLocation
	default:
		return domain.LocationSample{}, fmt.Errorf("poll location: unexpected status %s", resp.Status)
	}
}

// SendLocation posts POST /v1/rides/:id/location.
func (c *HTTPClient) SendLocation(ctx context.Context, sample domain.LocationSample) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/rides/"+url.PathEscape(sample.RideID)+"/location", map[string]any{
		"lat":       sample.Lat,
		"lng":       sample.Lng,
		"bearing":   sample.Bearing,
		"speed":     sample.Speed,
		"accuracy":  sample.Accuracy,
		"timestamp": sample.Timestamp,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send location: unexpected status %s", resp.Status)
	}
	return nil
}
