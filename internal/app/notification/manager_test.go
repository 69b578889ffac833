package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	delay time.Duration
}

func (s *recordingStream) Send(n *Notification) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, *n)
	return nil
}

func (s *recordingStream) received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager(0)
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	idB := m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	assert.Equal(t, 0, m.Broadcast(&Notification{Type: "slide_changed", Index: 0}))
	m.Unsubscribe(idB)
	assert.Equal(t, 0, m.Broadcast(&Notification{Type: "slide_changed", Index: 1}))

	gotA := a.received()
	require.Len(t, gotA, 2)
	assert.Equal(t, uint64(1), gotA[0].SequenceNo)
	assert.Equal(t, uint64(2), gotA[1].SequenceNo)
	assert.Equal(t, 1, gotA[1].Index)
	assert.Len(t, b.received(), 1)
}

func TestManager_BroadcastDropsFailingSubscribers(t *testing.T) {
	m := NewManager(0)
	ok := &recordingStream{}
	bad := &recordingStream{err: errors.New("closed")}
	m.Subscribe(ok)
	m.Subscribe(bad)

	assert.Equal(t, 1, m.Broadcast(&Notification{Type: "state_changed"}))
	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, ok.received(), 1)
}

func TestManager_BroadcastTimeout(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	slow := &recordingStream{delay: 200 * time.Millisecond}
	m.Subscribe(slow)

	start := time.Now()
	assert.Equal(t, 1, m.Broadcast(&Notification{Type: "state_changed"}))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_SendAndClose(t *testing.T) {
	m := NewManager(0)
	s := &recordingStream{}
	id := m.Subscribe(s)

	m.Broadcast(&Notification{Type: "a"})
	require.NoError(t, m.Send(id, &Notification{Type: "snapshot"}))
	require.NoError(t, m.Send("unknown", &Notification{Type: "snapshot"}))

	got := s.received()
	require.Len(t, got, 2)
	assert.Equal(t, "snapshot", got[1].Type)
	assert.Equal(t, uint64(1), got[1].SequenceNo)

	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}
