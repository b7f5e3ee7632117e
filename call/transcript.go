package call

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/primetalker/callkit/models"
)

// TranslationsFetcher, transcript poll'ünün ihtiyaç duyduğu minimal interface.
type TranslationsFetcher interface {
	Translations(ctx context.Context, roomID string, role models.Role, since int64) ([]models.Transcript, error)
}

// TranscriptPoller, çeviri log'unu since cursor'ıyla artımlı çeker.
//
// Cursor semantiği:
//   - Başlangıç değeri session başlangıcının unix millisecond'ıdır —
//     session öncesi kayıtlar hiç çekilmez.
//   - Cursor YALNIZCA boş olmayan bir yanıtta ilerler ve yanıttaki
//     timestamp'lere değil, poll anına (time.Now) ilerler. Poll ile
//     ilerleme arasında backend'e düşen kayıt bir sonraki poll'de
//     kaçabilir — bilinen ve kabul edilmiş kayıp penceresi; boş
//     yanıtta cursor'ı sabit tutmak tekrarları engeller.
//   - Overlay kapatılıp açıldığında cursor korunur: kapalıyken biriken
//     kayıtlar tekrar açılınca tek seferde gelir.
type TranscriptPoller interface {
	Start()
	Stop()

	// SetEnabled, poll'ü duraklatır/sürdürür. Cursor'a dokunmaz.
	SetEnabled(enabled bool)
	Enabled() bool

	// Log, o ana kadar biriken transcript'lerin kopyasını döner.
	Log() []models.Transcript

	// Clear, canlı log'u boşaltır. Yalnızca session sonunda çağrılır.
	Clear()
}

type transcriptPoller struct {
	fetcher  TranslationsFetcher
	session  *models.Session
	interval time.Duration
	onAppend func(appended []models.Transcript)

	enabled atomic.Bool

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	startMu sync.Mutex
	started bool

	mu    sync.Mutex // since ve log'u korur
	since int64
	log   []models.Transcript
}

// NewTranscriptPoller, constructor. Poll varsayılan olarak etkindir;
// cursor session başlangıcına kurulur.
func NewTranscriptPoller(fetcher TranslationsFetcher, session *models.Session, interval time.Duration,
	onAppend func(appended []models.Transcript)) TranscriptPoller {
	p := &transcriptPoller{
		fetcher:  fetcher,
		session:  session,
		interval: interval,
		onAppend: onAppend,
		stopCh:   make(chan struct{}),
		since:    session.StartedAt.UnixMilli(),
	}
	p.enabled.Store(true)
	return p
}

// Start, poll loop'unu başlatır. İlk poll bir interval sonra gelir —
// session başında henüz çeviri yoktur, hemen sormak boşa istek olur.
func (p *transcriptPoller) Start() {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.started || p.stopped.Load() {
		return
	}
	p.started = true

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop, poll loop'unu durdurur. Idempotent.
func (p *transcriptPoller) Stop() {
	p.stopped.Store(true)
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *transcriptPoller) SetEnabled(enabled bool) {
	old := p.enabled.Swap(enabled)
	if old != enabled {
		log.Printf("[transcript] overlay enabled=%v (cursor preserved)", enabled)
	}
}

func (p *transcriptPoller) Enabled() bool {
	return p.enabled.Load()
}

func (p *transcriptPoller) Log() []models.Transcript {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Transcript, len(p.log))
	copy(out, p.log)
	return out
}

func (p *transcriptPoller) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = nil
}

// tick, tek bir poll turu. Loop tek goroutine olduğundan turlar sıralı
// işlenir — yavaş bir yanıt sonraki turu geciktirir ama sıra bozulmaz.
func (p *transcriptPoller) tick() {
	if !p.enabled.Load() {
		return
	}

	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	items, err := p.fetcher.Translations(ctx, p.session.RoomID, p.session.Role, since)

	if p.stopped.Load() {
		return // Geç kalan yanıt — at
	}

	if err != nil {
		// Tur atlanır; cursor ilerlemez, kayıt kaybolmaz.
		log.Printf("[transcript] poll failed: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	p.mu.Lock()
	p.log = append(p.log, items...)
	p.since = time.Now().UnixMilli()
	p.mu.Unlock()

	if p.onAppend != nil {
		p.onAppend(items)
	}
}
