package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// EventPublisher, session katmanının event broadcast etmek için
// kullandığı interface.
//
// Dependency Inversion: main.go Hub'ın concrete struct'ına değil bu
// interface'e bağlanır — testlerde mock publisher kullanılabilir.
type EventPublisher interface {
	BroadcastToAll(event Event)
}

// Callbacks, UI'dan gelen komutların session katmanına iletildiği
// callback seti. ws paketi call paketini import etmez — bağlama
// main.go'da yapılır.
type Callbacks struct {
	OnEndCall           func(reason string)
	OnToggleTranslation func(on bool)
	OnToggleMute        func(muted bool)
}

// Hub, tüm UI WebSocket bağlantılarını yöneten merkezi yapıdır
// (Observer pattern). Birden fazla UI aynı session'ı izleyebilir —
// her snapshot değişikliği hepsine gider.
type Hub struct {
	// clients: bağlı client set'i. Go'da set yoktur, map[*Client]bool
	// kullanılır — bool değeri her zaman true, sadece varlık kontrolü.
	clients map[*Client]bool
	mu      sync.RWMutex

	// register/unregister: Client giriş/çıkış sinyalleri.
	register   chan *Client
	unregister chan *Client

	// seq: Her outbound event'e verilen artan sayaç.
	seq atomic.Int64

	callbacks Callbacks
}

// NewHub, yeni bir Hub oluşturur.
func NewHub(callbacks Callbacks) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		callbacks:  callbacks,
	}
}

// Run, Hub'ın ana event loop'udur. main.go'da `go hub.Run()` ile başlatılır.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	log.Printf("[ws] ui client connected (total: %d)", len(h.clients))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Printf("[ws] ui client disconnected (remaining: %d)", len(h.clients))
	}
}

// BroadcastToAll, tüm bağlı client'lara event gönderir.
func (h *Hub) BroadcastToAll(event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal broadcast event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Buffer dolu — bu client yavaş, kapat
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// ClientCount, bağlı client sayısını döner.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown, tüm client bağlantılarını kapatır (graceful shutdown).
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	log.Println("[ws] hub shut down, all connections closed")
}
