package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oddsview/oddsview/internal/metrics"
	"github.com/oddsview/oddsview/internal/protocol"
)

// Manager owns the single connection to the odds feed. It runs the
// reconnect-with-backoff state machine, the heartbeat, and inbound
// decode/dispatch. Subscribe and Unsubscribe are fire-and-forget: they fail
// with ErrNotConnected while the socket is down, and the application must
// re-issue its subscription after observing a reconnect.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	handlers Handlers

	// newClient is a seam for tests; defaults to NewClient.
	newClient func(Config, *slog.Logger) Client

	mu             sync.Mutex
	ctx            context.Context
	info           Info
	client         Client
	closed         bool // intentional close, suppresses reconnection
	backoff        time.Duration
	reconnectTimer *time.Timer
	hbStop         chan struct{}
	gen            int // connection generation, guards stale read loops
}

// NewManager creates a Connection Manager. Handlers may be partially or
// fully nil.
func NewManager(cfg Config, handlers Handlers, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:       cfg,
		logger:    logger,
		handlers:  handlers,
		newClient: NewClient,
		info:      Info{State: StateDisconnected},
		backoff:   cfg.ReconnectBaseDelay,
	}
}

// Connect opens the connection. No-op if already connecting or connected.
// A failed dial is not fatal: a reconnect is scheduled and the error is
// returned for information only.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.info.State != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.ctx = ctx
	m.mu.Unlock()

	return m.dial()
}

// Disconnect closes the connection with a normal-closure code, cancels any
// pending reconnect, and stops the heartbeat. No reconnection follows.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	c := m.client
	m.client = nil
	m.gen++
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}

	m.setState(StateDisconnected)
	m.logger.Info("disconnected")
	return nil
}

// Subscribe sends a subscribe message for one (sport, game, market) tuple.
// Returns ErrNotConnected (and drops the message) while the socket is down.
func (m *Manager) Subscribe(sport, gameID, market string) error {
	c, err := m.connectedClient()
	if err != nil {
		m.logger.Warn("subscribe while not connected, dropping",
			"sport", sport,
			"game_id", gameID,
			"market", market,
		)
		return err
	}

	data, err := protocol.EncodeSubscribe(sport, gameID, market)
	if err != nil {
		return err
	}

	m.logger.Info("subscribing", "sport", sport, "game_id", gameID, "market", market)
	return c.Send(data)
}

// Unsubscribe sends an unsubscribe message. Same delivery contract as
// Subscribe.
func (m *Manager) Unsubscribe() error {
	c, err := m.connectedClient()
	if err != nil {
		m.logger.Warn("unsubscribe while not connected, dropping")
		return err
	}

	data, err := protocol.EncodeUnsubscribe()
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Info returns a copy of the current connection info.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// State returns the current socket state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info.State
}

func (m *Manager) connectedClient() (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.info.State != StateConnected || m.client == nil {
		return nil, ErrNotConnected
	}
	return m.client, nil
}

// dial runs one connection attempt: connecting → connected on success,
// connecting → disconnected + scheduled retry on failure.
func (m *Manager) dial() error {
	m.setState(StateConnecting)

	c := m.newClient(m.cfg, m.logger)
	if err := c.Connect(m.ctx); err != nil {
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		// The state must read disconnected before the timer is armed, or
		// an immediately-firing timer would see connecting and skip the
		// retry.
		m.mu.Lock()
		m.info.State = StateDisconnected
		m.scheduleReconnectLocked()
		info := m.info
		m.mu.Unlock()
		m.notifyState(info)
		return err
	}

	m.mu.Lock()
	m.client = c
	m.backoff = m.cfg.ReconnectBaseDelay // success resets the backoff floor
	m.gen++
	gen := m.gen
	hbStop := make(chan struct{})
	m.hbStop = hbStop
	m.mu.Unlock()

	m.setState(StateConnected)
	metrics.ConnectsTotal.Inc()

	go m.readLoop(c, gen)
	go m.heartbeatLoop(c, hbStop)

	return nil
}

// readLoop consumes one client's messages until the transport dies.
func (m *Manager) readLoop(c Client, gen int) {
	for {
		select {
		case err := <-c.Errors():
			m.logger.Warn("connection lost", "error", err)
			m.transportClosed(gen)
			return

		case data, ok := <-c.Messages():
			if !ok {
				m.transportClosed(gen)
				return
			}
			m.dispatch(data)
		}
	}
}

// heartbeatLoop sends a protocol-level ping on every tick while connected.
// Missed pongs are surfaced through Info.LastPong, not acted on here.
func (m *Manager) heartbeatLoop(c Client, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := protocol.EncodePing()
			if err != nil {
				continue
			}
			if err := c.Send(data); err != nil {
				m.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// transportClosed handles an unclean close (or the tail of a clean one):
// stops the heartbeat and, unless Disconnect was requested, schedules a
// reconnect after the current backoff delay.
func (m *Manager) transportClosed(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection already superseded this one.
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.client = nil
	m.info.State = StateDisconnected
	if !m.closed {
		m.scheduleReconnectLocked()
	}
	info := m.info
	m.mu.Unlock()

	m.notifyState(info)
}

// scheduleReconnectLocked arms the reconnect timer with the current delay,
// then doubles the delay up to the ceiling. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	delay := m.backoff
	m.backoff = nextDelay(m.backoff, m.cfg.ReconnectMaxDelay)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	m.logger.Info("reconnect scheduled", "delay", delay)
	metrics.ReconnectsTotal.Inc()
}

// nextDelay doubles the backoff delay, capped at the ceiling.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closed || m.info.State != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.mu.Unlock()

	m.dial()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

// setState records a state transition and notifies the state handler.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.info.State = s
	info := m.info
	m.mu.Unlock()

	m.notifyState(info)
}

func (m *Manager) notifyState(info Info) {
	metrics.SetConnectionState(string(info.State))

	if m.handlers.OnState != nil {
		m.handlers.OnState(info)
	}
}

// dispatch decodes a raw payload and routes it. Malformed payloads are
// logged and dropped; the connection stays alive.
func (m *Manager) dispatch(data []byte) {
	metrics.MessagesTotal.Inc()

	msg, err := protocol.Decode(data)
	if err != nil {
		m.logger.Warn("dropping malformed message", "error", err)
		metrics.DecodeFailuresTotal.Inc()
		return
	}

	switch v := msg.(type) {
	case protocol.Connected:
		m.logger.Debug("server acknowledged connection", "server_time", v.ServerTime)

	case protocol.Pong:
		now := time.Now()
		m.mu.Lock()
		m.info.LastPong = &now
		info := m.info
		m.mu.Unlock()
		if m.handlers.OnState != nil {
			m.handlers.OnState(info)
		}

	case protocol.Status:
		m.mu.Lock()
		m.info.UpstreamConnected = v.UpstreamConnected
		m.info.GamesTracked = v.GamesTracked
		m.info.SportsbooksActive = v.SportsbooksActive
		info := m.info
		m.mu.Unlock()
		if m.handlers.OnState != nil {
			m.handlers.OnState(info)
		}

	default:
		// snapshot, update, error
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(msg)
		}
	}
}
