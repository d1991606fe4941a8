package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient registers a client without a websocket connection.
func fakeClient(h *Hub, buf int) *Client {
	c := &Client{hub: h, send: make(chan Message, buf)}
	h.join(c)
	return c
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("turns", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func TestHub(t *testing.T) {
	t.Run("broadcast reaches every client", func(t *testing.T) {
		h, _ := startHub(t)
		a := fakeClient(h, 4)
		b := fakeClient(h, 4)
		require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

		h.Broadcast(NewBinaryMessage([]byte{1, 2}))
		for _, c := range []*Client{a, b} {
			select {
			case msg := <-c.send:
				assert.Equal(t, BinaryMessage, msg.Type)
				assert.Equal(t, []byte{1, 2}, msg.Data)
			case <-time.After(time.Second):
				t.Fatal("message not delivered")
			}
		}
	})

	t.Run("publish turn encodes json", func(t *testing.T) {
		h, _ := startHub(t)
		c := fakeClient(h, 4)
		require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

		h.PublishTurn(Turn{RequestID: "r1", Intent: "stock", ResponseText: "In stock", OffTopicCount: 2})

		select {
		case msg := <-c.send:
			assert.Equal(t, JSONMessage, msg.Type)
			var got Turn
			require.NoError(t, json.Unmarshal(msg.Data, &got))
			assert.Equal(t, "r1", got.RequestID)
			assert.Equal(t, "stock", got.Intent)
			assert.Equal(t, 2, got.OffTopicCount)
			assert.False(t, got.Cutoff)
		case <-time.After(time.Second):
			t.Fatal("turn not delivered")
		}
	})

	t.Run("unregister closes send", func(t *testing.T) {
		h, _ := startHub(t)
		c := fakeClient(h, 1)
		h.leave(c)
		_, ok := <-c.send
		assert.False(t, ok)
		assert.Zero(t, h.ClientCount())
	})

	t.Run("slow client dropped", func(t *testing.T) {
		h, _ := startHub(t)
		c := fakeClient(h, 0)
		require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

		h.Broadcast(NewJSONMessage([]byte(`{}`)))
		require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
		_, ok := <-c.send
		assert.False(t, ok)
	})

	t.Run("cancel stops hub", func(t *testing.T) {
		h, cancel := startHub(t)
		c := fakeClient(h, 1)
		cancel()
		require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)
		_, ok := <-c.send
		assert.False(t, ok)
	})

	t.Run("join and leave after stop do not block", func(t *testing.T) {
		h, cancel := startHub(t)
		live := fakeClient(h, 1)
		cancel()
		require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)

		finished := make(chan bool, 1)
		go func() {
			h.leave(live)
			late := &Client{hub: h, send: make(chan Message, 1)}
			finished <- h.join(late)
		}()
		select {
		case joined := <-finished:
			assert.False(t, joined)
		case <-time.After(time.Second):
			t.Fatal("client blocked on a stopped hub")
		}
	})

	t.Run("publish without clients is a no-op", func(t *testing.T) {
		h := New("idle", nil)
		h.PublishTurn(Turn{RequestID: "x"})
		assert.Empty(t, h.broadcast)
	})
}
