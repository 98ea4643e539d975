// Command ridewatch follows a ride's technician from the terminal using the
// same connectivity strategy as the apps: WebSocket push with HTTP polling
// while the socket is down. With -send it plays the technician instead and
// streams a simulated route.
//
// Send SIGUSR1 to retry the socket after reconnection gave up.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/tracking"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "API base URL")
		token    = flag.String("token", os.Getenv("DISPATCH_TOKEN"), "bearer token")
		rideID   = flag.String("ride", "", "ride ID to follow")
		minMove  = flag.Float64("min-move", 5, "minimum movement in meters before a sample is shown")
		poll     = flag.Duration("poll", 5*time.Second, "polling interval while the socket is down")
		retries  = flag.Int("retries", 5, "socket reconnect attempts before polling only")
		delay    = flag.Duration("delay", 3*time.Second, "delay between reconnect attempts")
		send     = flag.Bool("send", false, "act as the technician and stream a simulated route")
		startLat = flag.Float64("lat", 12.9716, "simulated start latitude")
		startLng = flag.Float64("lng", 77.5946, "simulated start longitude")
	)
	flag.Parse()

	if *rideID == "" {
		log.Fatal("-ride is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &tracking.HTTPClient{
		BaseURL: *server,
		Token:   *token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
	wsDialer := &tracking.WSDialer{URL: wsURL(*server), Token: *token}

	if *send {
		simulate(ctx, *rideID, *startLat, *startLng, wsDialer, httpClient)
		return
	}

	client := tracking.NewClient(*rideID, wsDialer, httpClient, tracking.Config{
		MaxReconnectAttempts: *retries,
		ReconnectDelay:       *delay,
		PollInterval:         *poll,
		MinMovementM:         *minMove,
		BearingSmoothing:     0.5,
	}, func(s domain.LocationSample) {
		log.Printf("ride=%s lat=%.6f lng=%.6f bearing=%.0f speed=%.1f at=%s",
			s.RideID, s.Lat, s.Lng, s.Bearing, s.Speed, s.Timestamp.Format(time.RFC3339))
	}, func(from, to tracking.State) {
		log.Printf("connectivity %s -> %s", from, to)
	})

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			client.Reconnect()
		}
	}()

	if err := client.Run(ctx); err != nil {
		log.Fatalf("ridewatch: %v", err)
	}
}

// simulate drives a technician in a slow circle, one sample per second.
func simulate(ctx context.Context, rideID string, lat, lng float64, dialer *tracking.WSDialer, fallback *tracking.HTTPClient) {
	pusher := tracking.NewWSPusher(dialer)
	defer pusher.Close()

	sender := tracking.NewSender(pusher, fallback, 5*time.Second)
	go sender.Run(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	const radiusDeg = 0.002
	for step := 0; ; step++ {
		angle := float64(step) * math.Pi / 60
		sender.Offer(domain.LocationSample{
			RideID:    rideID,
			Lat:       lat + radiusDeg*math.Sin(angle),
			Lng:       lng + radiusDeg*math.Cos(angle),
			Bearing:   tracking.NormalizeBearing(90 - angle*180/math.Pi),
			Speed:     8,
			Timestamp: time.Now(),
		})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/ws"
}
