// Package relay fans payloads out to topic subscribers. Topics are opaque
// strings; there is no hierarchical matching and no replay of history
// predating a subscription.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medvoice/farah/internal/observability"
)

// ErrDeliveryTimeout reports a reliable publish that could not be confirmed
// for at least one subscriber within the bounded wait. Retrying may deliver
// duplicates to subscribers that already received the payload; tolerating
// duplicates is the consumer's job.
var ErrDeliveryTimeout = errors.New("reliable delivery timed out")

// Relay is a topic-addressed fan-out. Publishing with zero subscribers
// succeeds and delivers nothing.
type Relay struct {
	mu           sync.RWMutex
	subs         map[string][]*Subscription
	bufferSize   int
	reliableWait time.Duration
	metrics      *observability.Metrics
}

func NewRelay(bufferSize int, reliableWait time.Duration, metrics *observability.Metrics) *Relay {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if reliableWait <= 0 {
		reliableWait = 2 * time.Second
	}
	return &Relay{
		subs:         make(map[string][]*Subscription),
		bufferSize:   bufferSize,
		reliableWait: reliableWait,
		metrics:      metrics,
	}
}

// Subscription receives payloads for one topic until closed.
type Subscription struct {
	relay  *Relay
	topic  string
	ch     chan []byte
	mu     sync.RWMutex
	closed bool
}

// C is the payload stream. Payloads are shared; consumers must not mutate
// them.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Close detaches the subscription. Restarting requires a new Subscribe; there
// is no replay.
func (s *Subscription) Close() {
	s.relay.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe registers a new subscriber for the topic.
func (r *Relay) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		relay: r,
		topic: topic,
		ch:    make(chan []byte, r.bufferSize),
	}
	r.mu.Lock()
	r.subs[topic] = append(r.subs[topic], sub)
	r.mu.Unlock()
	return sub
}

// SubscriberCount reports active subscribers for a topic.
func (r *Relay) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[topic])
}

// Publish delivers the payload to every subscriber active at publish time.
// With reliable=true each subscriber gets a bounded wait under backpressure
// and any unconfirmed delivery surfaces as ErrDeliveryTimeout; retries are
// the publisher's decision. With reliable=false a congested subscriber is
// silently skipped.
func (r *Relay) Publish(ctx context.Context, topic string, payload []byte, reliable bool) error {
	r.mu.RLock()
	targets := make([]*Subscription, len(r.subs[topic]))
	copy(targets, r.subs[topic])
	r.mu.RUnlock()

	// Detach from the caller's buffer; subscribers share this copy read-only.
	p := make([]byte, len(payload))
	copy(p, payload)

	mode := "best_effort"
	if reliable {
		mode = "reliable"
	}
	if r.metrics != nil {
		r.metrics.RelayPublished.WithLabelValues(topic, mode).Inc()
	}

	var failed int
	for _, sub := range targets {
		delivered, err := sub.send(ctx, p, reliable, r.reliableWait)
		if err != nil {
			return err
		}
		if !delivered {
			if reliable {
				failed++
				if r.metrics != nil {
					r.metrics.RelayDeliveryFailures.WithLabelValues(topic).Inc()
				}
			} else if r.metrics != nil {
				r.metrics.RelayDropped.WithLabelValues(topic).Inc()
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("topic %q: %d of %d subscribers: %w", topic, failed, len(targets), ErrDeliveryTimeout)
	}
	return nil
}

func (s *Subscription) send(ctx context.Context, payload []byte, reliable bool, wait time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true, nil
	}

	if !reliable {
		select {
		case s.ch <- payload:
			return true, nil
		default:
			return false, nil
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- payload:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (r *Relay) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			r.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.topic]) == 0 {
		delete(r.subs, sub.topic)
	}
}
