package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// RoomInfoFetcher, presence poll'ünün ihtiyaç duyduğu minimal interface.
type RoomInfoFetcher interface {
	RoomInfo(ctx context.Context, roomID string) (*models.RoomInfo, error)
}

// PresenceMonitor, karşı tarafın odaya katılıp katılmadığını backend'e
// periyodik sorarak izler.
//
// İki kritik davranış:
//   - Başarısız bir poll peerJoined'ı ASLA false'a çevirmez — presence
//     bayrağı yalnızca başarılı yanıtlarla değişir. Geçici network hatası
//     UI'da "partner ayrıldı" yanılgısı yaratmamalıdır.
//   - 404 yanıtı "oda silinmiş" demektir ve onRoomGone'u TAM BİR KEZ
//     tetikler (session teardown'a gider).
type PresenceMonitor interface {
	Start()
	Stop()
}

type presenceMonitor struct {
	fetcher    RoomInfoFetcher
	session    *models.Session
	interval   time.Duration
	onSnapshot func(models.PresenceSnapshot)
	onRoomGone func()

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	startMu sync.Mutex
	started bool

	roomGoneOnce sync.Once
}

// NewPresenceMonitor, constructor.
// onSnapshot her başarılı poll'de, onRoomGone oda silindiğinde bir kez çağrılır.
func NewPresenceMonitor(fetcher RoomInfoFetcher, session *models.Session, interval time.Duration,
	onSnapshot func(models.PresenceSnapshot), onRoomGone func()) PresenceMonitor {
	return &presenceMonitor{
		fetcher:    fetcher,
		session:    session,
		interval:   interval,
		onSnapshot: onSnapshot,
		onRoomGone: onRoomGone,
		stopCh:     make(chan struct{}),
	}
}

// Start, poll loop'unu başlatır. İlk poll hemen yapılır, sonrakiler
// interval kadansında devam eder. İkinci çağrı no-op.
func (m *presenceMonitor) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started || m.stopped.Load() {
		return
	}
	m.started = true

	go func() {
		m.poll()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop, poll loop'unu durdurur. O(1) ve idempotent — teardown yolundan
// birden fazla kez çağrılabilir. Uçuştaki poll yanıtı stopped bayrağıyla
// atılır; durmuş bir monitor'dan callback çıkmaz.
func (m *presenceMonitor) Stop() {
	m.stopped.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *presenceMonitor) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	info, err := m.fetcher.RoomInfo(ctx, m.session.RoomID)

	// Yanıt dönene kadar Stop çağrıldıysa sonucu at — geç kalan bir yanıt
	// teardown sonrası state'i diriltmemelidir.
	if m.stopped.Load() {
		return
	}

	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			m.roomGoneOnce.Do(func() {
				log.Printf("[presence] room %s is gone", m.session.RoomID)
				if m.onRoomGone != nil {
					m.onRoomGone()
				}
			})
			return
		}
		// Geçici hata: logla, mevcut snapshot'a dokunma.
		log.Printf("[presence] poll failed: %v", err)
		return
	}

	language, name := info.Peer(m.session.Role)
	snapshot := models.PresenceSnapshot{
		PeerJoined: language != "",
		PeerName:   name,
	}

	if m.onSnapshot != nil {
		m.onSnapshot(snapshot)
	}
}
