package call_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primetalker/callkit/call"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// fakeRoomInfo, poll başına scriptlenmiş yanıtlar döner. Script biterse
// son öğe tekrarlanır.
type fakeRoomInfo struct {
	mu      sync.Mutex
	script  []roomInfoResult
	calls   int
	blockCh chan struct{} // nil değilse yanıt bu channel kapanana kadar bekler
}

type roomInfoResult struct {
	info *models.RoomInfo
	err  error
}

func (f *fakeRoomInfo) RoomInfo(ctx context.Context, roomID string) (*models.RoomInfo, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	result := f.script[idx]
	block := f.blockCh
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return result.info, result.err
}

func (f *fakeRoomInfo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// snapshotLog, onSnapshot callback'lerini toplar.
type snapshotLog struct {
	mu        sync.Mutex
	snapshots []models.PresenceSnapshot
}

func (l *snapshotLog) add(s models.PresenceSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, s)
}

func (l *snapshotLog) last() (models.PresenceSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snapshots) == 0 {
		return models.PresenceSnapshot{}, false
	}
	return l.snapshots[len(l.snapshots)-1], true
}

func (l *snapshotLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snapshots)
}

func TestPresenceMonitor_PeerJoinFlipsOnReportedLanguage(t *testing.T) {
	// İlk üç poll'de receiver henüz katılmamış (dil boş), dördüncüde katılmış.
	empty := &models.RoomInfo{CallerName: "Alice", CallerLanguage: "en"}
	joined := &models.RoomInfo{
		CallerName: "Alice", CallerLanguage: "en",
		ReceiverName: "Asha", ReceiverLanguage: "hi",
	}
	fetcher := &fakeRoomInfo{script: []roomInfoResult{
		{info: empty}, {info: empty}, {info: empty}, {info: joined},
	}}

	log := &snapshotLog{}
	monitor := call.NewPresenceMonitor(fetcher, testSession(t), 10*time.Millisecond, log.add, nil)
	monitor.Start()
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		last, ok := log.last()
		return ok && last.PeerJoined && last.PeerName == "Asha"
	}, time.Second, 5*time.Millisecond)

	// Önceki snapshot'lar peer'ı katılmamış göstermeli.
	log.mu.Lock()
	first := log.snapshots[0]
	log.mu.Unlock()
	assert.False(t, first.PeerJoined)
}

func TestPresenceMonitor_FailedPollNeverClearsPeer(t *testing.T) {
	joined := &models.RoomInfo{ReceiverName: "Asha", ReceiverLanguage: "hi"}
	fetcher := &fakeRoomInfo{script: []roomInfoResult{
		{info: joined},
		{err: errors.New("network down")},
		{err: errors.New("network down")},
	}}

	log := &snapshotLog{}
	monitor := call.NewPresenceMonitor(fetcher, testSession(t), 10*time.Millisecond, log.add, nil)
	monitor.Start()
	defer monitor.Stop()

	// Hatalı poll'ler geçene kadar bekle.
	assert.Eventually(t, func() bool { return fetcher.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	// Başarısız poll'ler snapshot üretmez — sadece ilk başarılı var.
	assert.Equal(t, 1, log.count())
	last, _ := log.last()
	assert.True(t, last.PeerJoined)
}

func TestPresenceMonitor_RoomGoneFiresOnce(t *testing.T) {
	notFound := errors.New("gone")
	fetcher := &fakeRoomInfo{script: []roomInfoResult{
		{err: errors.Join(pkg.ErrNotFound, notFound)},
	}}

	var gone sync.Mutex
	goneCount := 0
	onGone := func() {
		gone.Lock()
		goneCount++
		gone.Unlock()
	}

	monitor := call.NewPresenceMonitor(fetcher, testSession(t), 10*time.Millisecond, nil, onGone)
	monitor.Start()
	defer monitor.Stop()

	// Birden fazla 404 poll'ü geçmesine rağmen callback bir kez.
	require.Eventually(t, func() bool { return fetcher.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	gone.Lock()
	defer gone.Unlock()
	assert.Equal(t, 1, goneCount)
}

func TestPresenceMonitor_StaleResponseDiscardedAfterStop(t *testing.T) {
	joined := &models.RoomInfo{ReceiverName: "Asha", ReceiverLanguage: "hi"}
	block := make(chan struct{})
	fetcher := &fakeRoomInfo{
		script:  []roomInfoResult{{info: joined}},
		blockCh: block,
	}

	log := &snapshotLog{}
	monitor := call.NewPresenceMonitor(fetcher, testSession(t), 10*time.Millisecond, log.add, nil)
	monitor.Start()

	// İlk poll uçuşta — Stop edip sonra yanıtın dönmesine izin ver.
	require.Eventually(t, func() bool { return fetcher.callCount() >= 1 }, time.Second, time.Millisecond)
	monitor.Stop()
	close(block)

	// Geç kalan yanıt callback üretmemeli.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, log.count())
}
