package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	writeErr error
	gate     chan struct{}
}

func (f *fakeConn) WriteEvent(ev Event) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestChannelDeliversInOrder(t *testing.T) {
	conn := &fakeConn{}
	ch := NewChannel(conn)
	t.Cleanup(ch.Close)

	require.True(t, ch.Send(Progress(0)))
	require.True(t, ch.Send(Progress(42)))
	require.True(t, ch.Send(Warning("falling back to software encoding")))
	require.True(t, ch.Send(Done(DoneResult{Filename: "clip_compressed.mp4", Size: 1024})))

	require.Eventually(t, func() bool {
		return len(conn.snapshot()) == 4
	}, time.Second, 5*time.Millisecond)

	events := conn.snapshot()
	require.Equal(t, KindProgress, events[0].Type)
	require.NotNil(t, events[0].Percent)
	require.Equal(t, 0.0, *events[0].Percent)
	require.Equal(t, KindProgress, events[1].Type)
	require.Equal(t, 42.0, *events[1].Percent)
	require.Equal(t, KindWarning, events[2].Type)
	require.Equal(t, KindDone, events[3].Type)
	require.Equal(t, "clip_compressed.mp4", events[3].Filename)
}

func TestChannelSendAfterClose(t *testing.T) {
	conn := &fakeConn{}
	ch := NewChannel(conn)

	ch.Close()
	require.True(t, ch.Closed())
	require.True(t, conn.isClosed())

	require.False(t, ch.Send(Progress(10)))
	require.False(t, ch.Send(Error("encoder exited with status 1")))
}

func TestChannelCloseIdempotent(t *testing.T) {
	ch := NewChannel(&fakeConn{})
	ch.Close()
	ch.Close()
	require.True(t, ch.Closed())
}

func TestChannelWriteFailureCloses(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	ch := NewChannel(conn)

	ch.Send(Progress(5))

	require.Eventually(t, ch.Closed, time.Second, 5*time.Millisecond)
	require.True(t, conn.isClosed())
}

func TestChannelDropsProgressWhenSaturated(t *testing.T) {
	conn := &fakeConn{gate: make(chan struct{})}
	ch := NewChannel(conn)
	t.Cleanup(ch.Close)

	// The writer is stuck on the gate, so the queue fills up. One extra
	// event may be in flight inside the writer.
	dropped := false
	for i := 0; i < sendQueueSize+2; i++ {
		if !ch.Send(Progress(float64(i % 100))) {
			dropped = true
		}
	}
	require.True(t, dropped)

	close(conn.gate)
}

func TestChannelTerminalWaitsForSpace(t *testing.T) {
	conn := &fakeConn{gate: make(chan struct{})}
	ch := NewChannel(conn)
	t.Cleanup(ch.Close)

	for i := 0; i < sendQueueSize+2; i++ {
		ch.Send(Progress(float64(i % 100)))
	}

	delivered := make(chan bool, 1)
	go func() {
		delivered <- ch.Send(Done(DoneResult{Filename: "out.mp4"}))
	}()

	select {
	case <-delivered:
		t.Fatal("terminal send should wait while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(conn.gate)

	select {
	case ok := <-delivered:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("terminal send never completed")
	}

	require.Eventually(t, func() bool {
		events := conn.snapshot()
		return len(events) > 0 && events[len(events)-1].Terminal()
	}, time.Second, 5*time.Millisecond)
}
