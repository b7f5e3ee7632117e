package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient, conn'suz bir Client üretir — broadcast testlerinde yalnızca
// send channel'ı tüketilir, pump goroutine'leri çalışmaz.
func newTestClient(hub *Hub, buffer int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buffer)}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub(Callbacks{})
	go hub.Run()

	client := newTestClient(hub, sendBufferSize)
	hub.register <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastToAll(Event{Op: OpSnapshot, Data: map[string]string{"state": "connected"}})

	select {
	case raw := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, OpSnapshot, event.Op)
		assert.Equal(t, int64(1), event.Seq)
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the client")
	}
}

func TestHub_SeqIsMonotonic(t *testing.T) {
	hub := NewHub(Callbacks{})
	go hub.Run()

	client := newTestClient(hub, sendBufferSize)
	hub.register <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		hub.BroadcastToAll(Event{Op: OpSnapshot})
	}

	for want := int64(1); want <= 3; want++ {
		var event Event
		require.NoError(t, json.Unmarshal(<-client.send, &event))
		assert.Equal(t, want, event.Seq)
	}
}

func TestClient_SendEventSharesSeqCounter(t *testing.T) {
	hub := NewHub(Callbacks{})
	go hub.Run()

	client := newTestClient(hub, sendBufferSize)
	hub.register <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// Bağlantı açılışındaki ilk snapshot da numaralı gitmeli —
	// broadcast'lerle aynı sayaçtan, atlama yok.
	client.sendEvent(Event{Op: OpSnapshot})
	hub.BroadcastToAll(Event{Op: OpSnapshot})

	var first, second Event
	require.NoError(t, json.Unmarshal(<-client.send, &first))
	require.NoError(t, json.Unmarshal(<-client.send, &second))
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
}

func TestHub_SlowClientIsEvicted(t *testing.T) {
	hub := NewHub(Callbacks{})
	go hub.Run()

	// Buffer'ı 1 tutup iki broadcast gönder — ikincisi sığmaz.
	slow := newTestClient(hub, 1)
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastToAll(Event{Op: OpSnapshot})
	hub.BroadcastToAll(Event{Op: OpSnapshot})

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(Callbacks{})
	go hub.Run()

	client := newTestClient(hub, sendBufferSize)
	hub.register <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Shutdown()

	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-client.send
	assert.False(t, open)
}
