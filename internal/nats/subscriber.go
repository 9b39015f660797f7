package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds how many undelivered messages the subscriber holds
// before NATS applies backpressure.
const subscriberBuffer = 1024

// Subscriber delivers raw CDC messages from a NATS subject over a channel.
// A non-empty queue group lets multiple stage instances share the subject.
type Subscriber struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	logger *logrus.Logger
}

// NewSubscriber creates a new NATS subscriber
func NewSubscriber(url, subject, queueGroup string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Subscriber, error) {
	conn, err := nats.Connect(url, connectOptions(maxReconnect, reconnectWait, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	msgs := make(chan *nats.Msg, subscriberBuffer)

	var sub *nats.Subscription
	if queueGroup != "" {
		sub, err = conn.ChanQueueSubscribe(subject, queueGroup, msgs)
	} else {
		sub, err = conn.ChanSubscribe(subject, msgs)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	logger.Infof("Subscribed to %s (queue group: %q)", subject, queueGroup)

	return &Subscriber{
		conn:   conn,
		sub:    sub,
		msgs:   msgs,
		logger: logger,
	}, nil
}

// Messages returns the channel of inbound messages
func (s *Subscriber) Messages() <-chan *nats.Msg {
	return s.msgs
}

// Close drains the subscription and closes the NATS connection
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warnf("Failed to unsubscribe: %v", err)
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
