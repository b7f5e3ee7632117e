// Package device, ses transport cihazı soyutlamasını sağlar.
//
// Cihaz (collaborator) register/connect yaşam döngüsü ve sabit bir event
// seti sunar: {registered, connect, disconnect, error, message}. "message"
// event'i bağlantının in-band signaling kanalından gelen uygulama seviyesi
// kontrol mesajlarını taşır (örn. force-disconnect bildirimi).
//
// State machine cihaza BİR kez subscribe olur ve stop'ta unsubscribe eder —
// her durum geçişi tam bir kez raporlanır.
package device

import (
	"log"
	"sync"

	"github.com/primetalker/callkit/models"
)

// EventKind, cihaz event setinin typed constant'ı.
type EventKind string

const (
	EventRegistered EventKind = "registered"
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventError      EventKind = "error"
	EventMessage    EventKind = "message"
)

// Event, cihazdan yayınlanan tek bir olaydır.
// Err yalnızca EventError'da, Payload yalnızca EventMessage'da doludur.
type Event struct {
	Kind    EventKind
	Err     error
	Payload []byte
}

// ConnectParams, outbound bağlantı isteğiyle taşınan parametreler
// (wire contract, camelCase — backend TwiML app'i aynı isimleri bekler).
type ConnectParams struct {
	RoomID     string      `json:"roomId"`
	UserType   models.Role `json:"userType"`
	MyLanguage string      `json:"myLanguage"`
}

// Device, tek bir ses transport cihazını temsil eder.
//
// Event'ler transport'un yaydığı sırada teslim edilir — emitter yeniden
// sıralamaz. Register ve Connect asenkrondur: başarı ilgili event ile
// bildirilir, dönen error yalnızca isteğin gönderilemediğini söyler.
type Device interface {
	// Register, cihazı transport'a kaydeder. Başarı: EventRegistered.
	Register() error

	// Connect, {roomId, userType, myLanguage} parametreleriyle outbound
	// bağlantı isteği gönderir. Başarı: EventConnect.
	Connect(params ConnectParams) error

	// DisconnectAll, tüm aktif bağlantıları koparır. Idempotent.
	DisconnectAll() error

	// Close, cihazı ve altındaki kaynakları serbest bırakır. Idempotent.
	Close() error

	// Subscribe, event stream'ine abone olur. Dönen fonksiyon aboneliği
	// iptal eder ve channel'ı kapatır.
	Subscribe() (<-chan Event, func())
}

// Muter, mikrofon susturmayı destekleyen cihazların opsiyonel yeteneği.
// Device interface'inin parçası değildir — çağıran type assertion ile
// erişir, desteklemeyen cihazlarda mute sessizce atlanır.
type Muter interface {
	Mute(muted bool) error
}

// Factory, token ile cihaz üreten soyutlama.
//
// Yaşam döngüsündeki "loading_sdk" adımı factory'nin elde edilmesine,
// "registering" adımı factory'den token'la cihaz kurulmasına karşılık gelir.
type Factory interface {
	NewDevice(token string) (Device, error)
}

// ─── Emitter ───

// emitterBufferSize, abone channel'ının buffer boyutu.
// Cihaz event'leri düşük hacimlidir ve abone (state machine) hızlı
// tüketir — 16'lık buffer pratikte hiç dolmaz.
const emitterBufferSize = 16

// Emitter, Device implementasyonlarının paylaştığı typed event yayıcısı.
type Emitter struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEmitter, boş bir Emitter oluşturur.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]chan Event)}
}

// Subscribe, yeni bir abone channel'ı açar.
func (e *Emitter) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, emitterBufferSize)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit, event'i tüm abonelere sırayla iletir.
// Abone buffer'ı doluysa event düşürülür ve loglanır — emitter asla
// bloklanmaz, aksi halde yavaş bir abone cihaz read loop'unu kilitler.
func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
			log.Printf("[device] subscriber buffer full, dropping event %s", event.Kind)
		}
	}
}

// Close, tüm abone channel'larını kapatır; sonraki Emit'ler no-op olur.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
