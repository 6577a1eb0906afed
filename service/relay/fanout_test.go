package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvPayload(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for payload on conn=%s", c.ConnID)
		return nil
	}
}

func assertNoPayload(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected payload on conn=%s: %s", c.ConnID, msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFanoutDeliversToEveryClient(t *testing.T) {
	f := NewFanout(2, 16)

	clients := []*Client{
		newTestClient("c1", "alice"),
		newTestClient("c2", "bob"),
		newTestClient("c3", "carol"),
	}

	f.Broadcast(clients, []byte("hello"))

	for _, c := range clients {
		assert.Equal(t, []byte("hello"), recvPayload(t, c))
	}
}

func TestFanoutSkipsSlowClient(t *testing.T) {
	f := NewFanout(1, 16)

	slow := NewClient("slow", "alice", nil, 1)
	fast := newTestClient("fast", "bob")

	// fill the slow client's queue
	require.True(t, slow.enqueue([]byte("backlog")))

	f.Broadcast([]*Client{slow, fast}, []byte("update"))

	assert.Equal(t, []byte("update"), recvPayload(t, fast))
	// slow client still only has the backlog frame
	assert.Equal(t, []byte("backlog"), recvPayload(t, slow))
	assertNoPayload(t, slow)
}

func TestEnqueueAfterCloseDropped(t *testing.T) {
	c := newTestClient("c1", "alice")
	c.Close()
	assert.False(t, c.enqueue([]byte("late")))
}
