package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/primetalker/callkit/audio"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// backendCallTimeout: Controller'ın kendi başlattığı tekil backend
// çağrıları (join-room, leave-room, arşiv Insert) için üst sınır.
const backendCallTimeout = 5 * time.Second

// Backend, controller'ın ihtiyaç duyduğu backend operasyonlarının
// bileşik interface'i. api.Client bunu otomatik karşılar.
type Backend interface {
	TokenFetcher
	RoomInfoFetcher
	TranslationsFetcher

	JoinRoom(ctx context.Context, roomID, language, name string) error
	LeaveRoom(ctx context.Context, roomID string, role models.Role) error
}

// Archiver, biten aramanın kaydını kalıcılaştırır (opsiyonel — nil olabilir).
type Archiver interface {
	Insert(ctx context.Context, record *models.CallRecord) error
}

// Snapshot, session'ın UI'ya sunulan anlık görünümü.
type Snapshot struct {
	Session       models.Session         `json:"session"`
	State         models.ConnectionState `json:"state"`
	Status        string                 `json:"status"`
	PeerJoined    bool                   `json:"peer_joined"`
	PeerName      string                 `json:"peer_name,omitempty"`
	Muted         bool                   `json:"muted"`
	TranslationOn bool                   `json:"translation_on"`
	Level         int                    `json:"level"`
	Participants  []models.Participant   `json:"participants"`
	Transcripts   []models.Transcript    `json:"transcripts"`
	EndReason     string                 `json:"end_reason,omitempty"`
}

// Options, SessionController'ın tüm dependency'lerini taşır.
type Options struct {
	Session     *models.Session
	Backend     Backend
	LoadFactory FactoryLoader

	// Source nil olabilir — seviye göstergesi 0'da sabitlenir.
	Source audio.CaptureSource

	// Archiver nil olabilir — arama arşivlenmez.
	Archiver Archiver

	PresenceInterval   time.Duration
	TranscriptInterval time.Duration

	// OnChange, snapshot her değiştiğinde çağrılır (UI push kanalı).
	OnChange func(Snapshot)

	// OnTranscript, yeni çeviri satırları geldiğinde çağrılır — UI tam
	// snapshot beklemeden satırları ekleyebilir.
	OnTranscript func(appended []models.Transcript)

	// OnEnded, teardown tamamlandığında sebep ile bir kez çağrılır.
	OnEnded func(reason string)
}

// SessionController, session'ın dört asenkron sürecini orkestre eder ve
// TEK teardown yolunu sahiplenir.
//
// End(reason) idempotenttir: hangi tetikleyici önce gelirse gelsin
// (kullanıcı, peer disconnect, oda silinmesi, cihaz hatası, SIGINT)
// teardown tam bir kez, sabit sırayla koşar.
type SessionController interface {
	// Begin, session'ı başlatır. Yalnızca bir kez çağrılabilir.
	Begin(ctx context.Context) error

	// End, session'ı verilen sebeple sonlandırır. Idempotent.
	End(reason string)

	// Done, teardown tamamlandığında kapanan channel'ı döner.
	Done() <-chan struct{}

	// Snapshot, anlık session görünümünü döner.
	Snapshot() Snapshot

	// SetTranslation, çeviri overlay'ini açar/kapatır.
	SetTranslation(on bool)

	// SetMuted, lokal mikrofonu susturur/açar.
	SetMuted(muted bool)
}

type sessionController struct {
	session      *models.Session
	backend      Backend
	archiver     Archiver
	onChange     func(Snapshot)
	onTranscript func([]models.Transcript)
	onEnded      func(reason string)

	machine     StateMachine
	presence    PresenceMonitor
	transcripts TranscriptPoller
	meter       audio.LevelMeter

	started    atomic.Bool
	monitorsOn atomic.Bool
	ended      atomic.Bool
	done       chan struct{}

	mu           sync.Mutex
	state        models.ConnectionState
	status       string
	presenceSnap models.PresenceSnapshot
	muted        bool
	level        int
	endReason    string
}

// NewSessionController, constructor. Alt component'ler burada kurulur ve
// callback'lerle controller'a bağlanır.
func NewSessionController(opts Options) (SessionController, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("%w: session is required", pkg.ErrBadRequest)
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", pkg.ErrBadRequest)
	}
	if opts.LoadFactory == nil {
		return nil, fmt.Errorf("%w: factory loader is required", pkg.ErrBadRequest)
	}

	c := &sessionController{
		session:      opts.Session,
		backend:      opts.Backend,
		archiver:     opts.Archiver,
		onChange:     opts.OnChange,
		onTranscript: opts.OnTranscript,
		onEnded:      opts.OnEnded,
		done:     make(chan struct{}),
		state:    models.StateIdle,
		status:   models.StateIdle.Status(),
	}

	c.machine = NewStateMachine(opts.Backend, opts.LoadFactory, c.onMachineChange)
	c.presence = NewPresenceMonitor(opts.Backend, opts.Session, opts.PresenceInterval, c.onPresence, c.onRoomGone)
	c.transcripts = NewTranscriptPoller(opts.Backend, opts.Session, opts.TranscriptInterval, c.onTranscripts)
	c.meter = audio.NewMeter(opts.Source, c.onLevel)

	return c, nil
}

func (c *sessionController) Begin(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: session already started", pkg.ErrInvalidState)
	}

	// Receiver rolü odaya backend tarafında da kayıt düşer — başarısızlık
	// fatal değildir, presence karşı tarafta geç görünür sadece.
	if c.session.Role == models.RoleReceiver {
		joinCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
		defer cancel()
		if err := c.backend.JoinRoom(joinCtx, c.session.RoomID, c.session.Language, c.session.Name); err != nil {
			log.Printf("[session] join-room failed (continuing): %v", err)
		}
	}

	return c.machine.Start(ctx, c.session)
}

// End, TEK teardown yolu. Sıra sabittir:
// (a) backend'e leave-room (fire-and-forget)
// (b) state machine stop (bağlantılar + cihaz)
// (c) poller'lar stop
// (d) meter stop
// (e) presence state temizliği
// (f) done sinyali
func (c *sessionController) End(reason string) {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[session] ending (reason=%s)", reason)

	c.mu.Lock()
	c.endReason = reason
	peerName := c.presenceSnap.PeerName
	c.mu.Unlock()

	// (a) Ayrılış bildirimi — sonucu beklenmez, hatası yutulur.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		defer cancel()
		if err := c.backend.LeaveRoom(ctx, c.session.RoomID, c.session.Role); err != nil {
			log.Printf("[session] leave-room failed: %v", err)
		}
	}()

	// (b)
	c.machine.Stop()

	// (c)
	c.presence.Stop()
	c.transcripts.Stop()

	// (d)
	c.meter.Stop()

	// (e)
	c.mu.Lock()
	c.presenceSnap = models.PresenceSnapshot{}
	c.level = 0
	c.mu.Unlock()

	// Arşiv canlı log temizlenmeden önce yazılır.
	c.archive(reason, peerName)
	c.transcripts.Clear()

	c.publish()

	// (f)
	if c.onEnded != nil {
		c.onEnded(reason)
	}
	close(c.done)
}

func (c *sessionController) Done() <-chan struct{} {
	return c.done
}

func (c *sessionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *sessionController) SetTranslation(on bool) {
	c.transcripts.SetEnabled(on)
	c.publish()
}

func (c *sessionController) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()

	c.machine.Mute(muted)
	c.publish()
}

// ─── Alt component callback'leri ───

func (c *sessionController) onMachineChange(change StateChange) {
	c.mu.Lock()
	c.state = change.State
	c.status = change.Status
	c.mu.Unlock()

	c.publish()

	switch change.State {
	case models.StateConnected:
		// Monitörler bağlantı kurulunca bir kez başlar.
		if c.monitorsOn.CompareAndSwap(false, true) {
			c.presence.Start()
			c.transcripts.Start()
			c.meter.Start()
		}
	case models.StateError:
		c.End("device-error")
	case models.StateEnded:
		// Bizim End'imizin tetiklediği stop'ta CAS no-op yapar;
		// remote kaynaklı ended burada teardown'ı başlatır.
		c.End("remote")
	}
}

func (c *sessionController) onPresence(snapshot models.PresenceSnapshot) {
	if c.ended.Load() {
		return
	}

	c.mu.Lock()
	changed := c.presenceSnap != snapshot
	c.presenceSnap = snapshot
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

func (c *sessionController) onRoomGone() {
	c.End("room-deleted")
}

func (c *sessionController) onTranscripts(appended []models.Transcript) {
	if c.ended.Load() {
		return
	}

	if c.onTranscript != nil {
		c.onTranscript(appended)
	}
	c.publish()
}

func (c *sessionController) onLevel(level int) {
	if c.ended.Load() {
		return
	}

	c.mu.Lock()
	c.level = level
	c.mu.Unlock()

	c.publish()
}

// ─── Snapshot ───

func (c *sessionController) snapshotLocked() Snapshot {
	return Snapshot{
		Session:       *c.session,
		State:         c.state,
		Status:        c.status,
		PeerJoined:    c.presenceSnap.PeerJoined,
		PeerName:      c.presenceSnap.PeerName,
		Muted:         c.muted,
		TranslationOn: c.transcripts.Enabled(),
		Level:         c.level,
		Participants:  models.BuildParticipants(c.session.Name, c.muted, c.level, c.presenceSnap),
		Transcripts:   c.transcripts.Log(),
		EndReason:     c.endReason,
	}
}

func (c *sessionController) publish() {
	if c.onChange == nil {
		return
	}

	c.mu.Lock()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.onChange(snapshot)
}

func (c *sessionController) archive(reason, peerName string) {
	if c.archiver == nil {
		return
	}

	record := models.NewCallRecord(c.session, peerName, reason, c.transcripts.Log())

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()
	if err := c.archiver.Insert(ctx, record); err != nil {
		log.Printf("[session] archive failed: %v", err)
	}
}
