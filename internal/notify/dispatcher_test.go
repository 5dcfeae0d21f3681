package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "remedia/pkg/domain"
)

type captureSink struct {
	mu   sync.Mutex
	sent []Notification
}

func (s *captureSink) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatcher_DeliversThroughWorker(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.Dispatch(ctx, Notification{
		Type:        TypeStatusChanged,
		RecipientID: id.NewUserID(),
		Payload:     map[string]string{"from": "OPEN", "to": "IN_PROGRESS"},
	})

	require.Eventually(t, func() bool { return sink.count() == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

// Dispatch must never block the caller: with no worker draining and the
// buffer full, events are dropped.
func TestDispatcher_DispatchNeverBlocks(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, WithBuffer(1))

	ctx := context.Background()
	doneIn := make(chan struct{})
	go func() {
		defer close(doneIn)
		for i := 0; i < 100; i++ {
			d.Dispatch(ctx, Notification{Type: TypeObservationOverdue, RecipientID: id.NewUserID()})
		}
	}()

	select {
	case <-doneIn:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked with a full buffer")
	}

	// One event is buffered, the rest were dropped; nothing was delivered.
	assert.Equal(t, 0, sink.count())
	assert.Len(t, d.inbox, 1)
}
