package app

import (
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch/internal/config"
)

const rabbitDialAttempts = 5

// NewRabbitMQ dials the broker with a short linear backoff. It returns nil,
// nil when no URL is configured.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*amqp.Connection, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	var lastErr error
	for attempt := 1; attempt <= rabbitDialAttempts; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Printf("[MQ] Dial attempt %d/%d failed: %v", attempt, rabbitDialAttempts, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq: %w", lastErr)
}
