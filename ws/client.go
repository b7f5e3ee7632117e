package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: UI'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: UI'dan gelebilecek maksimum mesaj boyutu (byte).
	maxMessageSize = 4096

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer doluysa client yavaştır — disconnect edilir.
	sendBufferSize = 256
)

// Client, tek bir UI WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
// - ReadPump: UI'dan gelen komutları okur → callback'lere iletir
// - WritePump: Hub'dan gelen event'leri UI'a yazar
//
// gorilla/websocket aynı anda tek okuma ve tek yazma destekler —
// iki ayrı goroutine ile okuma ve yazma birbirini bloklamaz.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex // conn.WriteMessage çağrılarını korur
}

// ReadPump, WebSocket bağlantısından gelen komutları okur ve işler.
// Bağlantı kapanana kadar döngüde kalır.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline: %v", err)
		return
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close: %v", err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(rawMessage, &event); err != nil {
			log.Printf("[ws] invalid message: %v", err)
			continue
		}

		c.handleEvent(event)
	}
}

// handleEvent, UI'dan gelen event'leri türüne göre işler.
// Callback'ler go func() ile çağrılır — session katmanı Hub'a geri
// broadcast yaparsa deadlock oluşmaz.
func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline: %v", err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpEndCall:
		var data EndCallData
		if !decodeData(event, &data) {
			return
		}
		reason := data.Reason
		if reason == "" {
			reason = "local"
		}
		if c.hub.callbacks.OnEndCall != nil {
			go c.hub.callbacks.OnEndCall(reason)
		}

	case OpToggleTranslation:
		var data ToggleTranslationData
		if !decodeData(event, &data) {
			return
		}
		if c.hub.callbacks.OnToggleTranslation != nil {
			go c.hub.callbacks.OnToggleTranslation(data.On)
		}

	case OpToggleMute:
		var data ToggleMuteData
		if !decodeData(event, &data) {
			return
		}
		if c.hub.callbacks.OnToggleMute != nil {
			go c.hub.callbacks.OnToggleMute(data.Muted)
		}

	default:
		log.Printf("[ws] unknown op: %s", event.Op)
	}
}

// decodeData, event.Data'yı (any) hedef struct'a parse eder.
// Doğrudan cast edilemez — JSON'a çevirip tekrar parse etmek
// en güvenli yöntem.
func decodeData(event Event, out any) bool {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return false
	}
	return json.Unmarshal(dataBytes, out) == nil
}

// sendEvent, client'a tek bir event gönderir. Seq, broadcast'lerle aynı
// sayaçtan alınır — UI'ın gördüğü her event artan numara taşır, ilk
// snapshot da dahil.
func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event: %v", err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("[ws] send buffer full, dropping connection")
		c.hub.unregister <- c
	}
}

// WritePump, Hub'dan gelen mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel kapatıldı — Hub client'ı çıkardı
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar. gorilla/websocket conn'a aynı
// anda birden fazla yazma yasak — mutex ile korunur.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
