package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/link"
	"lautenbacher.net/gogate/link/sim"
	pl "lautenbacher.net/gogate/platform"
	u "lautenbacher.net/gogate/util"
)

type MockPlatform struct {
	lights   *u.AtomicMapEvent[[]float64]
	triggers map[string]*atomic.Bool
	ready    chan bool
	started  atomic.Bool
	stopped  atomic.Bool
}

func NewMockPlatform() *MockPlatform {
	ready := make(chan bool)
	close(ready)
	return &MockPlatform{
		lights: u.NewAtomicMapEvent[[]float64](),
		triggers: map[string]*atomic.Bool{
			pl.LocalGate: {},
			pl.PeerGate:  {},
		},
		ready: ready,
	}
}

func (m *MockPlatform) Start() error {
	m.started.Store(true)
	return nil
}

func (m *MockPlatform) Stop() {
	m.stopped.Store(true)
}

func (m *MockPlatform) Ready() <-chan bool {
	return m.ready
}

func (m *MockPlatform) Lights() *u.AtomicMapEvent[[]float64] {
	return m.lights
}

func (m *MockPlatform) Trigger(name string) func() bool {
	return m.triggers[name].Load
}

func (m *MockPlatform) Indicator(name string) gate.Indicator {
	return nil
}

func (m *MockPlatform) press(name string, active bool) {
	m.triggers[name].Store(active)
}

// fastConfig shortens every sequence so a full session takes well
// under a second of real time.
const fastConfig = `
Gate:
  LockSequence: [1, 2, 0]
  Debounce: 20ms
  PollInterval: 5ms
Animation:
  StartupStepUp: 1ms
  StartupStepDown: 1ms
  RotationMin: 10ms
  RotationMax: 20ms
  RotationStep: 5ms
  LockFlashes: 1
  LockFlashOn: 1ms
  LockFlashOff: 1ms
  FinalLockFlashes: 1
  FinalFlashOn: 1ms
  FinalFlashOff: 1ms
  KawooshDuration: 50ms
  KawooshOn: 1ms
  KawooshOff: 1ms
  IncomingStep: 1ms
  CloseDuration: 10ms
  CloseSteps: 2
  SessionTick: 5ms
Session:
  Timeout: 30s
  MinOpen: 0s
  CloseDelay: 0s
Link:
  Role: %ROLE%
  Backend: sim
  SimPeer: true
  ScanTimeout: 2s
  DiscoveryTimeout: 2s
  ReconnectInterval: 200ms
  SendSettle: 1ms
Hardware:
  Channels: 3
Logging:
  TUI:
    Level: "WARN"
`

func writeConfig(t *testing.T, role string) string {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), "config.yml")
	data := []byte(strings.ReplaceAll(fastConfig, "%ROLE%", role))
	require.NoError(t, os.WriteFile(cfile, data, 0o644))
	return cfile
}

func newTestApp(t *testing.T, role string) (*App, *MockPlatform, string) {
	t.Helper()
	cfile := writeConfig(t, role)
	app := NewApp(make(chan os.Signal, 1))
	mock := NewMockPlatform()
	app.platform = mock
	t.Cleanup(app.shutdown)
	require.NoError(t, app.initialise(cfile, false))
	return app, mock, cfile
}

func TestApp_SimPairOpensAndClosesBothGates(t *testing.T) {
	app, mock, _ := newTestApp(t, c.RoleActive)
	local := app.gates[pl.LocalGate]
	peer := app.gates[pl.PeerGate]
	require.NotNil(t, local)
	require.NotNil(t, peer)

	require.Eventually(t, func() bool {
		return local.Status().Connected && peer.Status().Connected
	}, 5*time.Second, 10*time.Millisecond, "the gates find each other on the simulated air")

	mock.press(pl.LocalGate, true)
	require.Eventually(t, func() bool { return peer.Status().Busy }, 5*time.Second, 5*time.Millisecond,
		"the peer plays the incoming wormhole")
	assert.True(t, local.Status().Busy)

	mock.press(pl.LocalGate, false)
	require.Eventually(t, func() bool {
		l, p := local.Status(), peer.Status()
		return !l.Busy && !p.Busy && l.Sessions == 1 && p.Sessions == 1
	}, 5*time.Second, 5*time.Millisecond, "releasing the trigger closes both gates")
}

func TestApp_RouterServesStatusMetricsAndConfig(t *testing.T) {
	app, _, _ := newTestApp(t, c.RoleNone)
	srv := httptest.NewServer(app.newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	var status map[string]gate.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.Contains(t, status, pl.LocalGate)
	assert.Equal(t, c.RoleNone, status[pl.LocalGate].Role)
	assert.NotContains(t, status, pl.PeerGate, "no peer without a link")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `gogate_busy{gate="gate"}`)

	resp, err = http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var runtime c.RuntimeConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runtime))
	assert.Equal(t, []int{1, 2, 0}, runtime.Gate.LockSequence)
}

func waitStatus(t *testing.T, url string) map[string]gate.Status {
	t.Helper()
	resp, err := http.Get(url + "/api/status?wait=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status map[string]gate.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func TestApp_StatusWaitsForChange(t *testing.T) {
	app, mock, _ := newTestApp(t, c.RoleNone)
	srv := httptest.NewServer(app.newRouter())
	defer srv.Close()

	local := app.gates[pl.LocalGate]
	require.Eventually(t, func() bool { return local.Status().Phase == gate.PhaseIdle }, 5*time.Second, 5*time.Millisecond)
	// no drain here, a wakeup left over from the startup phases must not end the wait

	go func() {
		time.Sleep(100 * time.Millisecond)
		mock.press(pl.LocalGate, true)
	}()
	status := waitStatus(t, srv.URL)
	assert.True(t, status[pl.LocalGate].Busy)
}

func TestApp_StatusWakesEveryWaiter(t *testing.T) {
	app, mock, _ := newTestApp(t, c.RoleNone)
	srv := httptest.NewServer(app.newRouter())
	defer srv.Close()

	local := app.gates[pl.LocalGate]
	require.Eventually(t, func() bool { return local.Status().Phase == gate.PhaseIdle }, 5*time.Second, 5*time.Millisecond)

	const waiters = 3
	results := make(chan bool, waiters)
	for range waiters {
		go func() {
			resp, err := http.Get(srv.URL + "/api/status?wait=1")
			if err != nil {
				results <- false
				return
			}
			defer resp.Body.Close()
			var status map[string]gate.Status
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				results <- false
				return
			}
			results <- status[pl.LocalGate].Busy
		}()
	}

	time.Sleep(100 * time.Millisecond)
	mock.press(pl.LocalGate, true)
	for range waiters {
		select {
		case busy := <-results:
			assert.True(t, busy)
		case <-time.After(5 * time.Second):
			t.Fatal("a waiter was not woken by the status change")
		}
	}
}

func TestApp_ConfigWriteRequestsReload(t *testing.T) {
	app, _, cfile := newTestApp(t, c.RoleNone)

	data, err := os.ReadFile(cfile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfile, data, 0o644))

	select {
	case sig := <-app.ossignal:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload request after the config file changed")
	}
}

func TestApp_ShutdownStopsPlatformAndGates(t *testing.T) {
	app, mock, _ := newTestApp(t, c.RolePassive)
	require.Len(t, app.channels, 2)
	require.Len(t, app.gates, 2)

	done := make(chan struct{})
	go func() {
		app.shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return, a gate loop is still running")
	}
	assert.True(t, mock.stopped.Load())
}

func TestApp_InitialiseFailsOnInvalidConfig(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte("Gate:\n  LockSequence: []\n"), 0o644))

	app := NewApp(make(chan os.Signal, 1))
	app.platform = NewMockPlatform()
	assert.ErrorContains(t, app.initialise(cfile, false), "must not be empty")
	app.shutdown()
}

func TestNewLinks(t *testing.T) {
	app := NewApp(make(chan os.Signal, 1))
	t.Cleanup(func() {
		for _, ch := range app.channels {
			ch.Close()
		}
	})

	conf := c.Default()
	conf.Link.Role = c.RoleNone
	local, peer, err := app.newLinks(conf)
	require.NoError(t, err)
	assert.IsType(t, &link.None{}, local)
	assert.Nil(t, peer)

	conf.Link.Role = c.RolePassive
	local, peer, err = app.newLinks(conf)
	require.NoError(t, err)
	assert.IsType(t, &link.PassiveRole{}, local)
	assert.Nil(t, peer, "no peer unless asked for")

	conf.Link.Role = c.RoleActive
	conf.Link.SimPeer = true
	local, peer, err = app.newLinks(conf)
	require.NoError(t, err)
	assert.IsType(t, &link.ActiveRole{}, local)
	assert.IsType(t, &link.PassiveRole{}, peer)
	assert.Len(t, app.channels, 3)

	conf.Link.Backend = c.BackendBLE
	_, _, err = app.newLinks(conf)
	assert.Error(t, err, "BLE is not built into tests")
}

type closeRecorder struct {
	link.Peripheral
	closed int
}

func (r *closeRecorder) Close() error {
	r.closed++
	return r.Peripheral.Close()
}

func TestPassiveLink_ClosesRadioWhenSetupFails(t *testing.T) {
	app := NewApp(make(chan os.Signal, 1))
	air := sim.NewAir()
	radio := air.NewPeripheral(simLocalAddr)
	_, err := radio.RegisterService(link.ServiceDef{})
	require.NoError(t, err)
	rec := &closeRecorder{Peripheral: radio}

	ch, err := app.passiveLink(rec, c.Default().Link)
	assert.Error(t, err, "a second service cannot be registered")
	assert.Nil(t, ch)
	assert.Equal(t, 1, rec.closed)
	assert.Empty(t, app.channels)
}

func TestResolveConfigFile(t *testing.T) {
	assert.Equal(t, "/etc/gogate.yml", resolveConfigFile("/etc/gogate.yml"))

	t.Setenv("GOGATE_CONFIG", "/tmp/env.yml")
	assert.Equal(t, "/tmp/env.yml", resolveConfigFile(""))

	t.Setenv("GOGATE_CONFIG", "")
	assert.Equal(t, c.CONFILE, filepath.Base(resolveConfigFile("")))
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, c.RolePassive, opposite(c.RoleActive))
	assert.Equal(t, c.RoleActive, opposite(c.RolePassive))
}
