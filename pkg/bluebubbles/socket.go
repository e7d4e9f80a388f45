package bluebubbles

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnectionState is the relay socket's current state. The resolver samples
// it synchronously to decide whether a live availability probe is worth
// attempting.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// StateListener is notified on every connection state transition. Callbacks
// run on the monitor's goroutine and must not block.
type StateListener interface {
	OnConnectionStateChanged(state ConnectionState)
}

const (
	socketInitialBackoff = time.Second
	socketMaxBackoff     = time.Minute
)

// Monitor maintains a WebSocket connection to the relay and exposes its
// state as a synchronously readable observable. It exists for the state,
// not the traffic: incoming frames are drained and discarded (message
// eventing is handled elsewhere), but a dead socket is how the gateway
// learns the relay is gone.
type Monitor struct {
	wsURL  string
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu        sync.Mutex
	state     ConnectionState
	listeners []StateListener

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a connection monitor for the server at baseURL (the
// same http(s) URL the REST client uses; the scheme is rewritten to ws/wss).
func NewMonitor(baseURL, password string, log zerolog.Logger) *Monitor {
	wsURL := strings.TrimRight(baseURL, "/")
	wsURL = strings.Replace(wsURL, "http", "ws", 1)
	query := url.Values{}
	query.Set("guid", password)
	return &Monitor{
		wsURL:  wsURL + "/api/v1/ws?" + query.Encode(),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.With().Str("component", "socket").Logger(),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Monitor) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddListener registers a state transition listener. The listener is
// immediately invoked with the current state so subscribers never start
// stale.
func (m *Monitor) AddListener(listener StateListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	state := m.state
	m.mu.Unlock()
	listener.OnConnectionStateChanged(state)
}

func (m *Monitor) setState(state ConnectionState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.log.Info().Stringer("state", state).Msg("Connection state changed")
	for _, listener := range listeners {
		listener.OnConnectionStateChanged(state)
	}
}

// Start launches the connect/read/reconnect loop. Reconnects use capped
// exponential backoff, reset after any successful connection.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop tears down the connection and waits for the loop to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.setState(StateDisconnected)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	backoff := socketInitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		m.setState(StateConnecting)
		conn, _, err := m.dialer.DialContext(ctx, m.wsURL, nil)
		if err != nil {
			m.setState(StateDisconnected)
			m.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Failed to connect to relay socket")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > socketMaxBackoff {
				backoff = socketMaxBackoff
			}
			continue
		}

		m.setState(StateConnected)
		backoff = socketInitialBackoff
		m.readLoop(ctx, conn)
		m.setState(StateDisconnected)
	}
}

// readLoop drains frames until the connection dies or ctx is cancelled.
func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("Relay socket read failed, reconnecting")
			}
			return
		}
	}
}
