// Package call — arama session'ının çekirdeği.
//
// Bu paket dört asenkron süreci tek bir tutarlı session durumuna
// katlar: ConnectionStateMachine (cihaz yaşam döngüsü), PresenceMonitor
// (peer katıldı mı?), TranscriptPoller (canlı çeviri log'u) ve bunları
// orkestre eden SessionController (tek teardown yolu).
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/primetalker/callkit/api"
	"github.com/primetalker/callkit/device"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// ─── ISP Interface'leri ───

// TokenFetcher, voice token almak için minimal interface.
// api.Client bu interface'i duck typing ile otomatik karşılar.
type TokenFetcher interface {
	VoiceToken(ctx context.Context) (*api.VoiceTokenResponse, error)
}

// FactoryLoader, transport SDK handle'ını (device.Factory) elde eder.
// Yaşam döngüsündeki "loading_sdk" adımı budur — başarısızlığı session
// için fatal'dır.
type FactoryLoader func() (device.Factory, error)

// ─── StateMachine ───

// StateChange, tek bir durum geçişinin raporu.
// Status kullanıcıya gösterilen kısa metindir; Err yalnızca
// StateError geçişlerinde doludur.
type StateChange struct {
	State  models.ConnectionState
	Status string
	Err    error
}

// StateMachine, ses cihazını registration/connect yaşam döngüsünden
// geçirir ve kaba durumu controller'a raporlar.
//
// Durum monotoniktir; "error" her terminal olmayan durumdan erişilebilir
// ve terminaldir (otomatik retry yok). Her geçiş onChange callback'i ile
// TAM BİR KEZ raporlanır.
type StateMachine interface {
	// Start, yaşam döngüsünü başlatır. Yalnızca idle durumundan geçerlidir.
	// loading_sdk → fetching_token → registering adımlarını senkron yürütür;
	// ready/connecting/connected cihaz event'leriyle asenkron ilerler.
	Start(ctx context.Context, session *models.Session) error

	// Stop, idempotent teardown: tüm bağlantıları koparır, cihazı serbest
	// bırakır; final durum ended (error'daysa error kalır).
	Stop()

	// Mute, aktif bağlantının mikrofonunu susturur/açar (best-effort).
	Mute(muted bool)

	// State, anlık durumu döner.
	State() models.ConnectionState
}

type stateMachine struct {
	tokens      TokenFetcher
	loadFactory FactoryLoader
	onChange    func(StateChange)

	mu          sync.Mutex
	state       models.ConnectionState
	dev         device.Device
	unsubscribe func()
	stopped     bool
}

// NewStateMachine, constructor. Dependency'ler injection ile alınır.
func NewStateMachine(tokens TokenFetcher, loadFactory FactoryLoader, onChange func(StateChange)) StateMachine {
	return &stateMachine{
		tokens:      tokens,
		loadFactory: loadFactory,
		onChange:    onChange,
		state:       models.StateIdle,
	}
}

func (s *stateMachine) Start(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	if s.state != models.StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: start is only valid from idle (current: %s)", pkg.ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	// 1. SDK handle'ı elde et
	s.transition(models.StateLoadingSDK, models.StateLoadingSDK.Status(), nil)

	factory, err := s.loadFactory()
	if err != nil {
		s.fail("Init Error", fmt.Errorf("failed to load transport: %w", err))
		return nil
	}

	// 2. Voice token al
	s.transition(models.StateFetchingToken, models.StateFetchingToken.Status(), nil)

	tokenResp, err := s.tokens.VoiceToken(ctx)
	if err != nil {
		s.fail("Init Error", fmt.Errorf("token fetch failed: %w", err))
		return nil
	}
	if tokenResp.Token == "" {
		s.fail("Init Error", fmt.Errorf("%w: missing token in voice-token response", pkg.ErrUnavailable))
		return nil
	}

	// Token JWT ise expiry'yi erkenden kontrol et — süresi geçmiş token'la
	// transport'a gitmek yerine fetching_token aşamasında fail et.
	// Opak (JWT olmayan) token'lar atlanır; doğrulamayı transport yapar.
	if expired, expErr := tokenExpired(tokenResp.Token); expErr == nil && expired {
		s.fail("Token Expired", fmt.Errorf("%w: voice token already expired", pkg.ErrUnavailable))
		return nil
	}

	// 3. Cihazı token ile kur
	dev, err := factory.NewDevice(tokenResp.Token)
	if err != nil {
		s.fail("Init Error", fmt.Errorf("failed to construct device: %w", err))
		return nil
	}

	// Event aboneliği Register'dan ÖNCE — ilk event kaçırılmaz.
	events, cancel := dev.Subscribe()

	s.mu.Lock()
	if s.stopped {
		// Start sırasında Stop çağrıldı — cihazı hemen bırak.
		s.mu.Unlock()
		cancel()
		_ = dev.Close()
		return nil
	}
	s.dev = dev
	s.unsubscribe = cancel
	s.mu.Unlock()

	go s.eventLoop(session, events)

	// 4. Register
	s.transition(models.StateRegistering, models.StateRegistering.Status(), nil)

	if err := dev.Register(); err != nil {
		s.fail("Init Error", fmt.Errorf("device register failed: %w", err))
		return nil
	}

	return nil
}

// eventLoop, cihaz event'lerini yayılma sırasında işler.
// Tek goroutine — transport'un sırası korunur, yeniden sıralama yapılmaz.
func (s *stateMachine) eventLoop(session *models.Session, events <-chan device.Event) {
	for ev := range events {
		switch ev.Kind {
		case device.EventRegistered:
			// ready'ye geç ve hemen connect et.
			s.transition(models.StateReady, models.StateReady.Status(), nil)
			s.connect(session)

		case device.EventConnect:
			s.transition(models.StateConnected, models.StateConnected.Status(), nil)

		case device.EventDisconnect:
			s.transition(models.StateEnded, models.StateEnded.Status(), nil)
			s.Stop()

		case device.EventError:
			s.fail("Device Error", ev.Err)

		case device.EventMessage:
			s.handleMessage(ev.Payload)
		}
	}
}

// controlMessage, bağlantının in-band signaling kanalından gelen
// uygulama seviyesi kontrol mesajı.
type controlMessage struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// handleMessage, in-band mesajları işler. force-disconnect bildirimi
// error/ended geçişiyle aynı şekilde ele alınır ve Stop tetikler.
func (s *stateMachine) handleMessage(payload []byte) {
	var msg controlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return // Tanınmayan mesaj — yoksay
	}

	if msg.Event == "force-disconnect" {
		log.Printf("[statemachine] forced disconnect from backend: %s", msg.Reason)
		s.transition(models.StateEnded, models.StateEnded.Status(), nil)
		s.Stop()
	}
}

// connect, outbound bağlantı isteğini gönderir. Yalnızca ready'den geçerli.
func (s *stateMachine) connect(session *models.Session) {
	s.mu.Lock()
	if s.state != models.StateReady {
		s.mu.Unlock()
		log.Printf("[statemachine] connect skipped (state=%s)", s.state)
		return
	}
	dev := s.dev
	s.mu.Unlock()

	s.transition(models.StateConnecting, models.StateConnecting.Status(), nil)

	err := dev.Connect(device.ConnectParams{
		RoomID:     session.RoomID,
		UserType:   session.Role,
		MyLanguage: session.Language,
	})
	if err != nil {
		s.fail("Connection Failed", fmt.Errorf("connect request failed: %w", err))
	}
}

func (s *stateMachine) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return // İkinci çağrı no-op
	}
	s.stopped = true
	dev := s.dev
	cancel := s.unsubscribe
	s.dev = nil
	s.unsubscribe = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev != nil {
		if err := dev.DisconnectAll(); err != nil {
			log.Printf("[statemachine] disconnect-all failed: %v", err)
		}
		if err := dev.Close(); err != nil {
			log.Printf("[statemachine] device close failed: %v", err)
		}
	}

	// error terminal'dir ve korunur; diğer tüm durumlardan ended'a geç.
	s.transition(models.StateEnded, models.StateEnded.Status(), nil)
}

func (s *stateMachine) Mute(muted bool) {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev == nil {
		return
	}
	if muter, ok := dev.(device.Muter); ok {
		if err := muter.Mute(muted); err != nil {
			log.Printf("[statemachine] mute failed: %v", err)
		}
	}
}

func (s *stateMachine) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition, durumu günceller ve geçişi tam bir kez raporlar.
// Terminal durumdan çıkış yoktur; aynı duruma tekrar geçiş raporlanmaz.
func (s *stateMachine) transition(to models.ConnectionState, status string, err error) {
	s.mu.Lock()
	if s.state == to || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = to
	onChange := s.onChange
	s.mu.Unlock()

	if err != nil {
		log.Printf("[statemachine] → %s: %v", to, err)
	} else {
		log.Printf("[statemachine] → %s", to)
	}

	if onChange != nil {
		onChange(StateChange{State: to, Status: status, Err: err})
	}
}

// fail, error durumuna geçer ve kaynakları bırakır.
func (s *stateMachine) fail(status string, err error) {
	s.transition(models.StateError, status, err)
	s.Stop()
}

// tokenExpired, JWT token'ın exp claim'ini imza doğrulaması YAPMADAN okur.
// Client token'ı mint etmez ve secret'a sahip değildir — yalnızca süresi
// geçmiş token'ı erken yakalamak için bakar.
func tokenExpired(token string) (bool, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, err
	}
	return exp.Before(time.Now()), nil
}
