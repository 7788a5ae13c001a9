package connection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oddsview/oddsview/internal/protocol"
)

// fakeClient is a scriptable transport for manager tests.
type fakeClient struct {
	connectErr error

	messages chan []byte
	errs     chan error

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeClient(connectErr error) *fakeClient {
	return &fakeClient{
		connectErr: connectErr,
		messages:   make(chan []byte, 16),
		errs:       make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeClient) Messages() <-chan []byte { return f.messages }
func (f *fakeClient) Errors() <-chan error    { return f.errs }

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeClient) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return string(f.sent[len(f.sent)-1])
}

// fakeFactory hands out fake clients, failing the first n connects.
type fakeFactory struct {
	mu       sync.Mutex
	failures int
	clients  []*fakeClient
}

func (ff *fakeFactory) new(cfg Config, logger *slog.Logger) Client {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	var err error
	if ff.failures > 0 {
		ff.failures--
		err = errors.New("dial refused")
	}
	c := newFakeClient(err)
	ff.clients = append(ff.clients, c)
	return c
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) == 0 {
		return nil
	}
	return ff.clients[len(ff.clients)-1]
}

func testManagerConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://test/ws/odds"
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 40 * time.Millisecond
	cfg.PingInterval = time.Hour // keep heartbeat quiet unless a test wants it
	return cfg
}

func newTestManager(cfg Config, h Handlers, ff *fakeFactory) *Manager {
	m := NewManager(cfg, h, slog.Default())
	m.newClient = ff.new
	return m
}

func (m *Manager) currentBackoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff
}

func TestNextDelay(t *testing.T) {
	max := 30 * time.Second
	delay := 1 * time.Second

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, w := range want {
		delay = nextDelay(delay, max)
		if delay != w {
			t.Errorf("step %d: delay = %v, want %v", i+1, delay, w)
		}
	}
}

func TestManager_ConnectNoOpWhenConnected(t *testing.T) {
	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{}, ff)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %v, want connected", m.State())
	}

	// Second connect must not dial again.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if got := ff.count(); got != 1 {
		t.Errorf("clients created = %d, want 1", got)
	}

	m.Disconnect()
}

func TestManager_ReconnectsWithBackoff(t *testing.T) {
	cfg := testManagerConfig()
	ff := &fakeFactory{failures: 3}
	m := newTestManager(cfg, Handlers{}, ff)

	// First dial fails; retries are scheduled at 5ms, 10ms, 20ms.
	m.Connect(context.Background())

	deadline := time.After(time.Second)
	for ff.count() < 4 || m.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatalf("never reconnected: %d attempts, state %v", ff.count(), m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Success resets the backoff to the floor.
	if got := m.currentBackoff(); got != cfg.ReconnectBaseDelay {
		t.Errorf("backoff after success = %v, want %v", got, cfg.ReconnectBaseDelay)
	}

	m.Disconnect()
}

func TestManager_BackoffDoublesPerFailure(t *testing.T) {
	cfg := testManagerConfig()
	ff := &fakeFactory{failures: 100} // never succeeds
	m := newTestManager(cfg, Handlers{}, ff)

	m.Connect(context.Background())

	// After the first failed dial the next scheduled delay has doubled.
	if got := m.currentBackoff(); got != 2*cfg.ReconnectBaseDelay {
		t.Errorf("backoff after 1 failure = %v, want %v", got, 2*cfg.ReconnectBaseDelay)
	}

	// Let several retries fail; backoff must cap at the ceiling.
	time.Sleep(200 * time.Millisecond)
	if got := m.currentBackoff(); got != cfg.ReconnectMaxDelay {
		t.Errorf("backoff after many failures = %v, want ceiling %v", got, cfg.ReconnectMaxDelay)
	}

	m.Disconnect()
}

// TestManager_ImmediateRetryAfterFailedDial uses a near-zero delay so the
// reconnect timer fires while the failed dial is still unwinding. The retry
// must not be lost to a stale connecting state.
func TestManager_ImmediateRetryAfterFailedDial(t *testing.T) {
	for i := 0; i < 25; i++ {
		cfg := testManagerConfig()
		cfg.ReconnectBaseDelay = time.Nanosecond
		cfg.ReconnectMaxDelay = time.Millisecond

		ff := &fakeFactory{failures: 1}
		m := newTestManager(cfg, Handlers{}, ff)

		m.Connect(context.Background())

		deadline := time.Now().Add(500 * time.Millisecond)
		for m.State() != StateConnected {
			if time.Now().After(deadline) {
				t.Fatalf("run %d: manager stuck in %v after failed dial", i, m.State())
			}
			time.Sleep(time.Millisecond)
		}
		m.Disconnect()
	}
}

func TestManager_UncleanCloseTriggersReconnect(t *testing.T) {
	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{}, ff)

	m.Connect(context.Background())
	first := ff.last()

	// Simulate an abrupt transport failure.
	first.errs <- errors.New("connection reset")

	deadline := time.After(time.Second)
	for ff.count() < 2 || m.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatalf("no reconnect after unclean close: %d clients, state %v", ff.count(), m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.Disconnect()
}

func TestManager_DisconnectSuppressesReconnect(t *testing.T) {
	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{}, ff)

	m.Connect(context.Background())
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}

	time.Sleep(100 * time.Millisecond)
	if got := ff.count(); got != 1 {
		t.Errorf("clients created after Disconnect = %d, want 1", got)
	}

	// Terminal: reconnecting via Connect is refused.
	if err := m.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Disconnect err = %v, want ErrAlreadyClosed", err)
	}
}

func TestManager_SubscribeWhileDisconnected(t *testing.T) {
	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{}, ff)

	if err := m.Subscribe("NHL", "rangers@bruins", "Total"); err != ErrNotConnected {
		t.Errorf("Subscribe err = %v, want ErrNotConnected", err)
	}
	if err := m.Unsubscribe(); err != ErrNotConnected {
		t.Errorf("Unsubscribe err = %v, want ErrNotConnected", err)
	}
}

func TestManager_SubscribeSendsMessage(t *testing.T) {
	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{}, ff)

	m.Connect(context.Background())
	defer m.Disconnect()

	if err := m.Subscribe("NHL", "rangers@bruins", "Total"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sent := ff.last().lastSent()
	for _, want := range []string{`"type":"subscribe"`, `"sport":"NHL"`, `"game_id":"rangers@bruins"`, `"market":"Total"`} {
		if !strings.Contains(sent, want) {
			t.Errorf("subscribe payload %s missing %s", sent, want)
		}
	}
}

func TestManager_DispatchRouting(t *testing.T) {
	var mu sync.Mutex
	var got []protocol.Message

	ff := &fakeFactory{}
	m := newTestManager(testManagerConfig(), Handlers{
		OnMessage: func(msg protocol.Message) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		},
	}, ff)

	m.Connect(context.Background())
	defer m.Disconnect()
	fc := ff.last()

	fc.messages <- []byte(`{"type":"connected","server_time":"t0"}`)
	fc.messages <- []byte(`{"type":"status","upstream_connected":true,"games_tracked":7,"sportsbooks_active":3}`)
	fc.messages <- []byte(`{"type":"pong","server_time":"t1"}`)
	fc.messages <- []byte(`this is not json`)
	fc.messages <- []byte(`{"type":"snapshot","sport":"NHL","game_id":"g1","market":"Total","odds":{}}`)
	fc.messages <- []byte(`{"type":"error","message":"bad subscription"}`)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	// Only snapshot and error reach the message handler.
	if len(got) != 2 {
		t.Fatalf("handler received %d messages, want 2: %v", len(got), got)
	}
	if _, ok := got[0].(protocol.Snapshot); !ok {
		t.Errorf("first message = %T, want Snapshot", got[0])
	}
	if _, ok := got[1].(protocol.ServerError); !ok {
		t.Errorf("second message = %T, want ServerError", got[1])
	}

	info := m.Info()
	if !info.UpstreamConnected || info.GamesTracked != 7 || info.SportsbooksActive != 3 {
		t.Errorf("status not applied to Info: %+v", info)
	}
	if info.LastPong == nil {
		t.Error("pong did not set LastPong")
	}
}

func TestManager_HeartbeatSendsPing(t *testing.T) {
	cfg := testManagerConfig()
	cfg.PingInterval = 10 * time.Millisecond

	ff := &fakeFactory{}
	m := newTestManager(cfg, Handlers{}, ff)

	m.Connect(context.Background())
	defer m.Disconnect()
	fc := ff.last()

	deadline := time.After(time.Second)
	for fc.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no ping sent")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := fc.lastSent(); got != `{"type":"ping"}` {
		t.Errorf("heartbeat sent %s, want ping", got)
	}
}
