// WebSocket tabanlı Device implementasyonu.
//
// Cihaz, voice gateway'in signaling kanalına gorilla/websocket ile bağlanır
// ve küçük bir JSON frame protokolü konuşur:
//
//	Client → Gateway: {op:"register"} / {op:"connect", d:{params}} / {op:"disconnect"} / {op:"mute", d:{muted}}
//	Gateway → Client: {op:"registered"} / {op:"connected"} / {op:"disconnected"}
//	                  {op:"error", d:{message}} / {op:"message", d:<uygulama mesajı>}
//
// Gateway "message" frame'leri uygulama seviyesi kontrol mesajlarını relay
// eder (örn. {"event":"force-disconnect"}) — cihaz içeriğe bakmaz, raw
// payload'ı EventMessage olarak yukarı iletir.
//
// gorilla/websocket aynı anda tek okuma ve tek yazma destekler:
// okuma tek bir readPump goroutine'inde yapılır, yazmalar mutex ile korunur.
package device

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/primetalker/callkit/pkg"
)

const (
	// writeWait: Bir frame'i yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// dialTimeout: Signaling soketine bağlanma üst sınırı.
	dialTimeout = 10 * time.Second

	// maxFrameSize: Gateway'den gelen bir frame'in üst boyutu (byte).
	maxFrameSize = 8192
)

// frame, signaling kanalındaki tek bir JSON mesajı.
type frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// errorFrameData, {op:"error"} frame'inin payload'ı.
type errorFrameData struct {
	Message string `json:"message"`
}

// muteFrameData, {op:"mute"} frame'inin payload'ı.
type muteFrameData struct {
	Muted bool `json:"muted"`
}

// SignalingFactory, websocket signaling cihazları üreten Factory.
type SignalingFactory struct {
	gatewayURL string
}

// NewSignalingFactory, gateway URL'ini doğrular ve factory döner.
// Geçersiz URL "SDK load" hatasına karşılık gelir — session için fatal.
func NewSignalingFactory(gatewayURL string) (*SignalingFactory, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signaling url: %v", pkg.ErrBadRequest, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: signaling url must be ws:// or wss://", pkg.ErrBadRequest)
	}
	return &SignalingFactory{gatewayURL: gatewayURL}, nil
}

// NewDevice, token ile yeni bir signaling cihazı kurar.
// Bağlantı burada değil Register'da kurulur — token sadece saklanır.
func (f *SignalingFactory) NewDevice(token string) (Device, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", pkg.ErrBadRequest)
	}
	return &signalingDevice{
		gatewayURL: f.gatewayURL,
		token:      token,
		emitter:    NewEmitter(),
	}, nil
}

// signalingDevice, Device'ın websocket implementasyonu.
type signalingDevice struct {
	gatewayURL string
	token      string
	emitter    *Emitter

	mu     sync.Mutex // conn ve closed'ı korur; WriteMessage çağrılarını serialize eder
	conn   *websocket.Conn
	closed bool
}

// Register, gateway'e bağlanır ve register frame'i gönderir.
// Gateway kaydı onayladığında {op:"registered"} gelir → EventRegistered.
func (d *signalingDevice) Register() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("%w: device is closed", pkg.ErrInvalidState)
	}
	if d.conn != nil {
		return fmt.Errorf("%w: already registered", pkg.ErrInvalidState)
	}

	// Token query parameter ile taşınır — WebSocket upgrade sırasında
	// custom header gönderilemez.
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(d.gatewayURL+"?token="+url.QueryEscape(d.token), nil)
	if err != nil {
		return fmt.Errorf("%w: signaling dial failed: %v", pkg.ErrUnavailable, err)
	}
	conn.SetReadLimit(maxFrameSize)
	d.conn = conn

	go d.readPump(conn)

	return d.writeFrameLocked(frame{Op: "register"})
}

// Connect, outbound bağlantı isteğini gönderir.
func (d *signalingDevice) Connect(params ConnectParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal connect params: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil || d.closed {
		return fmt.Errorf("%w: device not registered", pkg.ErrInvalidState)
	}
	return d.writeFrameLocked(frame{Op: "connect", Data: payload})
}

// Mute, aktif bağlantının mikrofonunu susturur/açar.
// Device interface'inin parçası değildir — controller type assertion ile
// erişir; mute desteklemeyen cihazlarda sessizce atlanır.
func (d *signalingDevice) Mute(muted bool) error {
	payload, err := json.Marshal(muteFrameData{Muted: muted})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil || d.closed {
		return fmt.Errorf("%w: device not connected", pkg.ErrInvalidState)
	}
	return d.writeFrameLocked(frame{Op: "mute", Data: payload})
}

// DisconnectAll, tüm aktif bağlantıları koparır. Idempotent —
// bağlantı yoksa no-op.
func (d *signalingDevice) DisconnectAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil || d.closed {
		return nil
	}
	// Gateway disconnect'i işleyip {op:"disconnected"} gönderir;
	// yazma hatası bağlantının zaten koptuğu anlamına gelir — yoksay.
	if err := d.writeFrameLocked(frame{Op: "disconnect"}); err != nil {
		log.Printf("[device] disconnect write failed (connection likely gone): %v", err)
	}
	return nil
}

// Close, soketi kapatır ve emitter'ı serbest bırakır. Idempotent.
func (d *signalingDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	d.emitter.Close()
	return nil
}

// Subscribe, cihaz event stream'ine abone olur.
func (d *signalingDevice) Subscribe() (<-chan Event, func()) {
	return d.emitter.Subscribe()
}

// readPump, gateway'den gelen frame'leri okur ve event'e çevirir.
// Transport'un yaydığı sıra korunur — tek goroutine, yeniden sıralama yok.
func (d *signalingDevice) readPump(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()

			// Kasıtlı Close sonrası okuma hatası beklenir — event üretme.
			if !closed {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[device] unexpected signaling close: %v", err)
					d.emitter.Emit(Event{Kind: EventError, Err: fmt.Errorf("signaling connection lost: %w", err)})
				} else {
					d.emitter.Emit(Event{Kind: EventDisconnect})
				}
			}
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("[device] invalid signaling frame: %v", err)
			continue
		}

		switch f.Op {
		case "registered":
			d.emitter.Emit(Event{Kind: EventRegistered})
		case "connected":
			d.emitter.Emit(Event{Kind: EventConnect})
		case "disconnected":
			d.emitter.Emit(Event{Kind: EventDisconnect})
		case "error":
			var data errorFrameData
			_ = json.Unmarshal(f.Data, &data)
			d.emitter.Emit(Event{Kind: EventError, Err: fmt.Errorf("device error: %s", data.Message)})
		case "message":
			d.emitter.Emit(Event{Kind: EventMessage, Payload: f.Data})
		default:
			log.Printf("[device] unknown signaling op: %s", f.Op)
		}
	}
}

// writeFrameLocked, bir frame'i sokete yazar. Çağıran d.mu'yu tutmalıdır —
// gorilla/websocket conn'a aynı anda birden fazla yazma yasaktır.
func (d *signalingDevice) writeFrameLocked(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if err := d.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return d.conn.WriteMessage(websocket.TextMessage, data)
}
