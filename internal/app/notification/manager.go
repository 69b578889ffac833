// Package notification fans presentation updates out to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultSendTimeout bounds a single subscriber send during Broadcast.
const DefaultSendTimeout = 500 * time.Millisecond

// Notification is a presentation update delivered to viewers.
type Notification struct {
	SequenceNo uint64  `json:"sequence_no"`
	Type       string  `json:"type"`
	Index      int     `json:"index"`
	Total      int     `json:"total"`
	State      string  `json:"state"`
	Mode       string  `json:"mode"`
	Paused     bool    `json:"paused"`
	Rate       float64 `json:"rate"`
	Title      string  `json:"title,omitempty"`
	HTML       string  `json:"html,omitempty"`
	Markdown   string  `json:"-"`
	Caption    string  `json:"caption,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager. A non-positive
// sendTimeout means DefaultSendTimeout.
func NewManager(sendTimeout time.Duration) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   sendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps n with the next sequence number and sends it to all
// subscribers in parallel. Subscribers whose send fails are removed.
// It returns the number of failed or timed out sends.
func (m *Manager) Broadcast(n *Notification) int {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []string
		timeouts int
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Msgf("notification: send to %s failed, unsubscribing", s.id)
					failedMu.Lock()
					failed = append(failed, s.id)
					failedMu.Unlock()
				}
			case <-ctx.Done():
				failedMu.Lock()
				timeouts++
				failedMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	for _, id := range failed {
		m.Unsubscribe(id)
	}
	return len(failed) + timeouts
}

// Send sends a notification to a specific subscriber without stamping a
// new sequence number.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	m.sequenceNoMu.Lock()
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	return sub.stream.Send(n)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
