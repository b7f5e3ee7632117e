package call_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primetalker/callkit/api"
	"github.com/primetalker/callkit/call"
	"github.com/primetalker/callkit/device"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// ─── Fakes ───

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) VoiceToken(ctx context.Context) (*api.VoiceTokenResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.VoiceTokenResponse{Token: f.token}, nil
}

// fakeDevice, testin event'leri elle emit ettiği scriptable cihaz.
type fakeDevice struct {
	emitter *device.Emitter

	registerErr error
	connectErr  error

	mu             sync.Mutex
	registerCalls  int
	connectParams  []device.ConnectParams
	disconnectAlls int
	closes         int
	mutes          []bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{emitter: device.NewEmitter()}
}

func (d *fakeDevice) Register() error {
	d.mu.Lock()
	d.registerCalls++
	d.mu.Unlock()
	return d.registerErr
}

func (d *fakeDevice) Connect(params device.ConnectParams) error {
	d.mu.Lock()
	d.connectParams = append(d.connectParams, params)
	d.mu.Unlock()
	return d.connectErr
}

func (d *fakeDevice) DisconnectAll() error {
	d.mu.Lock()
	d.disconnectAlls++
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	d.emitter.Close()
	return nil
}

func (d *fakeDevice) Subscribe() (<-chan device.Event, func()) {
	return d.emitter.Subscribe()
}

func (d *fakeDevice) Mute(muted bool) error {
	d.mu.Lock()
	d.mutes = append(d.mutes, muted)
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *fakeDevice) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.connectParams)
}

type fakeFactory struct {
	dev device.Device
	err error
}

func (f *fakeFactory) NewDevice(token string) (device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dev, nil
}

// changeLog, onChange callback'inden gelen geçişleri toplar.
type changeLog struct {
	mu      sync.Mutex
	changes []call.StateChange
}

func (l *changeLog) add(change call.StateChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, change)
}

func (l *changeLog) states() []models.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ConnectionState, len(l.changes))
	for i, c := range l.changes {
		out[i] = c.State
	}
	return out
}

func (l *changeLog) last() call.StateChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.changes) == 0 {
		return call.StateChange{}
	}
	return l.changes[len(l.changes)-1]
}

func testSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := models.NewSession("room-1", models.RoleCaller, "en", "Alice")
	require.NoError(t, err)
	return session
}

func loaderFor(factory device.Factory) call.FactoryLoader {
	return func() (device.Factory, error) { return factory, nil }
}

// ─── Tests ───

func TestStateMachine_HappyPath(t *testing.T) {
	dev := newFakeDevice()
	log := &changeLog{}
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), log.add)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	// Cihaz kaydı onayladı → ready, ardından connect isteği gitmeli.
	dev.emitter.Emit(device.Event{Kind: device.EventRegistered})
	assert.Eventually(t, func() bool { return dev.connectCount() == 1 }, time.Second, 5*time.Millisecond)

	dev.emitter.Emit(device.Event{Kind: device.EventConnect})
	assert.Eventually(t, func() bool { return len(log.states()) == 6 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.StateConnected, machine.State())
	assert.Equal(t, []models.ConnectionState{
		models.StateLoadingSDK,
		models.StateFetchingToken,
		models.StateRegistering,
		models.StateReady,
		models.StateConnecting,
		models.StateConnected,
	}, log.states())

	// Connect parametreleri session'dan gelmeli.
	dev.mu.Lock()
	params := dev.connectParams[0]
	dev.mu.Unlock()
	assert.Equal(t, "room-1", params.RoomID)
	assert.Equal(t, models.RoleCaller, params.UserType)
	assert.Equal(t, "en", params.MyLanguage)
}

func TestStateMachine_StartOnlyFromIdle(t *testing.T) {
	dev := newFakeDevice()
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), nil)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	err := machine.Start(context.Background(), testSession(t))
	assert.ErrorIs(t, err, pkg.ErrInvalidState)
}

func TestStateMachine_FactoryLoadFailure(t *testing.T) {
	log := &changeLog{}
	loader := func() (device.Factory, error) { return nil, errors.New("sdk unavailable") }
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loader, log.add)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	assert.Equal(t, models.StateError, machine.State())
	assert.Equal(t, "Init Error", log.last().Status)
	assert.Error(t, log.last().Err)
}

func TestStateMachine_TokenFailures(t *testing.T) {
	t.Run("fetch error", func(t *testing.T) {
		log := &changeLog{}
		machine := call.NewStateMachine(&fakeTokens{err: errors.New("boom")},
			loaderFor(&fakeFactory{dev: newFakeDevice()}), log.add)

		require.NoError(t, machine.Start(context.Background(), testSession(t)))
		assert.Equal(t, models.StateError, machine.State())
		assert.Equal(t, "Init Error", log.last().Status)
	})

	t.Run("empty token", func(t *testing.T) {
		log := &changeLog{}
		machine := call.NewStateMachine(&fakeTokens{token: ""},
			loaderFor(&fakeFactory{dev: newFakeDevice()}), log.add)

		require.NoError(t, machine.Start(context.Background(), testSession(t)))
		assert.Equal(t, models.StateError, machine.State())
	})

	t.Run("expired jwt", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := expired.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		log := &changeLog{}
		machine := call.NewStateMachine(&fakeTokens{token: signed},
			loaderFor(&fakeFactory{dev: newFakeDevice()}), log.add)

		require.NoError(t, machine.Start(context.Background(), testSession(t)))
		assert.Equal(t, models.StateError, machine.State())
		assert.Equal(t, "Token Expired", log.last().Status)
	})

	t.Run("opaque token is accepted", func(t *testing.T) {
		// JWT olmayan token expiry kontrolünü atlar — doğrulama transport'un işi.
		dev := newFakeDevice()
		machine := call.NewStateMachine(&fakeTokens{token: "opaque-token"},
			loaderFor(&fakeFactory{dev: dev}), nil)

		require.NoError(t, machine.Start(context.Background(), testSession(t)))
		assert.Equal(t, models.StateRegistering, machine.State())
	})
}

func TestStateMachine_RegisterFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.registerErr = errors.New("gateway refused")
	log := &changeLog{}
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), log.add)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	assert.Equal(t, models.StateError, machine.State())
	assert.Equal(t, "Init Error", log.last().Status)
	// Cihaz serbest bırakılmış olmalı.
	assert.Eventually(t, func() bool { return dev.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStateMachine_DeviceErrorEvent(t *testing.T) {
	dev := newFakeDevice()
	log := &changeLog{}
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), log.add)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	dev.emitter.Emit(device.Event{Kind: device.EventError, Err: errors.New("media lost")})

	assert.Eventually(t, func() bool { return log.last().Status == "Device Error" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StateError, machine.State())
	// error terminal'dir — Stop'un ended geçişi onu ezmemeli.
	assert.Eventually(t, func() bool { return dev.closeCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StateError, machine.State())
}

func TestStateMachine_RemoteDisconnect(t *testing.T) {
	dev := newFakeDevice()
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), nil)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))
	dev.emitter.Emit(device.Event{Kind: device.EventRegistered})
	dev.emitter.Emit(device.Event{Kind: device.EventConnect})
	dev.emitter.Emit(device.Event{Kind: device.EventDisconnect})

	assert.Eventually(t, func() bool { return machine.State() == models.StateEnded }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return dev.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStateMachine_ForceDisconnectMessage(t *testing.T) {
	dev := newFakeDevice()
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), nil)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))
	dev.emitter.Emit(device.Event{Kind: device.EventRegistered})
	dev.emitter.Emit(device.Event{Kind: device.EventConnect})
	dev.emitter.Emit(device.Event{
		Kind:    device.EventMessage,
		Payload: []byte(`{"event":"force-disconnect","reason":"room closed"}`),
	})

	assert.Eventually(t, func() bool { return machine.State() == models.StateEnded }, time.Second, 5*time.Millisecond)
}

func TestStateMachine_StopIsIdempotent(t *testing.T) {
	dev := newFakeDevice()
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), nil)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	machine.Stop()
	machine.Stop()

	dev.mu.Lock()
	closes, disconnects := dev.closes, dev.disconnectAlls
	dev.mu.Unlock()
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, models.StateEnded, machine.State())
}

func TestStateMachine_MuteReachesDevice(t *testing.T) {
	dev := newFakeDevice()
	machine := call.NewStateMachine(&fakeTokens{token: "tok"}, loaderFor(&fakeFactory{dev: dev}), nil)

	require.NoError(t, machine.Start(context.Background(), testSession(t)))

	machine.Mute(true)
	machine.Mute(false)

	dev.mu.Lock()
	mutes := append([]bool(nil), dev.mutes...)
	dev.mu.Unlock()
	assert.Equal(t, []bool{true, false}, mutes)
}
