package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const sendQueueSize = 128

// Conn is the transport a channel writes events to. The WebSocket session
// implements it; tests use in-memory fakes.
type Conn interface {
	WriteEvent(Event) error
	Close() error
}

// Channel delivers events for one correlation id to one connected client.
// Events are queued and drained by a single writer goroutine, so delivery
// order matches emission order and senders never touch the transport.
type Channel struct {
	conn  Conn
	queue chan Event
	done  chan struct{}

	closeOnce sync.Once
}

func NewChannel(conn Conn) *Channel {
	ch := &Channel{
		conn:  conn,
		queue: make(chan Event, sendQueueSize),
		done:  make(chan struct{}),
	}
	go ch.writeLoop()
	return ch
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.queue:
			if err := c.conn.WriteEvent(ev); err != nil {
				log.Debug().Err(err).Str("type", string(ev.Type)).Msg("notification write failed")
				c.Close()
				return
			}
		}
	}
}

// Send enqueues an event and reports whether it was accepted. Progress and
// warning events are dropped when the client cannot keep up; a terminal
// event waits for queue space so it reaches any still-connected client.
// Send never blocks on a closed channel.
func (c *Channel) Send(ev Event) bool {
	if ev.Terminal() {
		select {
		case c.queue <- ev:
			return true
		case <-c.done:
			return false
		}
	}

	select {
	case c.queue <- ev:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close shuts the channel down and closes the transport. Idempotent; queued
// but undelivered events are discarded.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Done is closed when the channel is no longer deliverable.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
