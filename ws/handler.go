package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// SnapshotProvider, bağlantı kurulduğunda UI'a gönderilen ilk snapshot'ı
// sağlar — UI mevcut durumu bir sonraki değişikliği beklemeden çizer.
// ws paketi call paketini import etmez; main.go controller'ın Snapshot
// metodunu buraya adapte eder.
type SnapshotProvider func() any

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub      *Hub
	snapshot SnapshotProvider
	upgrader websocket.Upgrader
}

// NewHandler, yeni bir WebSocket handler oluşturur.
//
// allowedOrigins: Origin header whitelist'i. Server loopback'e bind olur
// ama tarayıcıdaki herhangi bir sayfa yine de ws://127.0.0.1'e bağlanmayı
// deneyebilir — cross-origin istekler burada reddedilir. Origin header'ı
// olmayan istekler (curl, native client) kabul edilir.
func NewHandler(hub *Hub, snapshot SnapshotProvider, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// HandleConnection, HTTP bağlantısını WebSocket'e yükseltir ve client'ı
// Hub'a kaydeder.
//
// Flow:
// 1. HTTP → WebSocket upgrade (origin kontrolü upgrader'da)
// 2. Client oluştur, Hub'a kaydet
// 3. İlk snapshot'ı gönder
// 4. ReadPump ve WritePump goroutine'lerini başlat
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.hub.register <- client

	if h.snapshot != nil {
		client.sendEvent(Event{Op: OpSnapshot, Data: h.snapshot()})
	}

	// WritePump ayrı goroutine'de; ReadPump bu goroutine'de bloklar —
	// aksi halde HTTP handler hemen döner.
	go client.WritePump()
	client.ReadPump()
}
