package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jodete-online/jodete-server/internal/protocol"
)

// newBufferedClient builds a client with no transport attached; only the
// send path is exercised.
func newBufferedClient(buffer int) *Client {
	return &Client{
		id:   "conn-test",
		name: "Ana",
		send: make(chan []byte, buffer),
	}
}

func TestSendMessageAfterClose(t *testing.T) {
	c := newBufferedClient(1)
	c.Close()

	// Must be a silent no-op, not a send on a closed channel.
	c.SendMessage(protocol.MustNewMessage(protocol.MsgPong, nil))
	assert.Equal(t, 0, len(c.send))
}

func TestSendMessageFullBufferClosesClient(t *testing.T) {
	c := newBufferedClient(1)
	msg := protocol.MustNewMessage(protocol.MsgPong, nil)

	c.SendMessage(msg)
	c.SendMessage(msg)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)

	// Close after the inline shutdown stays idempotent.
	c.Close()
	c.SendMessage(msg)
}

func TestSendMessageConcurrentWithClose(t *testing.T) {
	c := newBufferedClient(4)
	msg := protocol.MustNewMessage(protocol.MsgPong, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SendMessage(msg)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Close()
	}()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.closed)
}
