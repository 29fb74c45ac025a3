// Package netclient owns the websocket connection to the game server: dialing, the join
// handshake, reading frames, writing commands and reconnecting after the socket closes.
package netclient

import (
	"context"
	stlog "log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/irishsmurf/go-mmo-client/metrics"
	"github.com/irishsmurf/go-mmo-client/protocol"
)

const (
	writeWait        = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait         = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod       = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	handshakeTimeout = 10 * time.Second
	sendBuffer       = 64
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

// AllStates lists every state, in declaration order.
var AllStates = []State{Disconnected, Connecting, Connected, Error}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// EventKind distinguishes state transitions from inbound frames.
type EventKind int

const (
	EventState EventKind = iota
	EventMessage
)

// Event is delivered to the consumer in the order things happened on the connection.
type Event struct {
	Kind  EventKind
	State State  // EventState: the new state
	Err   error  // EventState: the transport error behind Error / Disconnected, if any
	Data  []byte // EventMessage: the raw frame
	// RetryIn is set on Disconnected events when a reconnection has been scheduled.
	RetryIn time.Duration
}

// Options configures a Manager.
type Options struct {
	URL            string
	Username       string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Logger         *stlog.Logger
	EventBuffer    int
}

// Manager runs the connection state machine. Events are consumed from Events(); commands are
// written with Send, which is safe to call from any goroutine.
type Manager struct {
	opts    Options
	logger  *stlog.Logger
	events  chan Event
	dropLog *rate.Limiter

	mu    sync.Mutex
	state State
	send  chan []byte // outbound queue of the open connection, nil otherwise
}

// New creates a manager in the Disconnected state. Call Run to start connecting.
func New(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = stlog.Default()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	return &Manager{
		opts:    opts,
		logger:  opts.Logger.With("component", "netclient", "server", opts.URL),
		events:  make(chan Event, opts.EventBuffer),
		dropLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
		state:   Disconnected,
	}
}

// Events returns the channel of state changes and inbound frames. It is closed when Run
// returns.
func (m *Manager) Events() <-chan Event { return m.events }

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send queues cmd for the open connection. Commands issued while the state is anything
// other than Connected are dropped without error.
func (m *Manager) Send(cmd protocol.Command) {
	data, err := cmd.Encode()
	if err != nil {
		m.logger.Error("Failed to encode command", "action", cmd.Action, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected || m.send == nil {
		metrics.DroppedCommands.WithLabelValues(cmd.Action).Inc()
		if m.dropLog.Allow() {
			m.logger.Debug("Dropping command while not connected", "action", cmd.Action, "state", m.state.String())
		}
		return
	}
	select {
	case m.send <- data:
		metrics.SentCommands.WithLabelValues(cmd.Action).Inc()
	default:
		metrics.DroppedCommands.WithLabelValues(cmd.Action).Inc()
		m.logger.Warn("Send buffer full, dropping command", "action", cmd.Action)
	}
}

// Run connects and keeps reconnecting until ctx is cancelled. It blocks; the events channel
// is closed on return.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.events)
	defer m.logger.Info("Connection manager stopped")

	for {
		if ctx.Err() != nil {
			m.setState(ctx, Event{Kind: EventState, State: Disconnected})
			return
		}

		m.setState(ctx, Event{Kind: EventState, State: Connecting})
		metrics.ConnectAttempts.Inc()
		m.logger.Info("Attempting to connect")

		conn, _, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(ctx, Event{Kind: EventState, State: Disconnected})
				return
			}
			m.logger.Warn("Dial error", "error", err, "retryIn", m.opts.ReconnectDelay)
			m.setState(ctx, Event{Kind: EventState, State: Error, Err: err})
			m.setState(ctx, Event{Kind: EventState, State: Disconnected, Err: err, RetryIn: m.opts.ReconnectDelay})
		} else {
			m.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
		}

		// Reconnection is a cancellable scheduled task.
		timer := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setState(ctx, Event{Kind: EventState, State: Disconnected})
			return
		case <-timer.C:
		}
	}
}

// serve runs one connection until it closes.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendBuffer)
	m.mu.Lock()
	m.send = send
	m.mu.Unlock()
	m.setState(ctx, Event{Kind: EventState, State: Connected})
	m.logger.Info("Connected")

	m.Send(protocol.JoinCommand(m.opts.Username))

	writerDone := make(chan struct{})
	go m.writePump(conn, send, writerDone)

	readDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-readDone:
		}
	}()

	err := m.readPump(ctx, conn)
	close(readDone)

	m.mu.Lock()
	m.send = nil
	m.mu.Unlock()
	close(send)
	<-writerDone
	conn.Close()

	if ctx.Err() != nil {
		m.setState(ctx, Event{Kind: EventState, State: Disconnected})
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Info("WebSocket connection closed normally", "retryIn", m.opts.ReconnectDelay)
		m.setState(ctx, Event{Kind: EventState, State: Disconnected, RetryIn: m.opts.ReconnectDelay})
		return
	}
	m.logger.Warn("WebSocket read error", "error", err, "retryIn", m.opts.ReconnectDelay)
	m.setState(ctx, Event{Kind: EventState, State: Error, Err: err})
	m.setState(ctx, Event{Kind: EventState, State: Disconnected, Err: err, RetryIn: m.opts.ReconnectDelay})
}

// readPump forwards frames to the events channel until the connection fails.
func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		metrics.ReceivedBytes.Add(float64(len(message)))
		if !m.emit(ctx, Event{Kind: EventMessage, Data: message}) {
			return ctx.Err()
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with pings.
func (m *Manager) writePump(conn *websocket.Conn, send <-chan []byte, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()
	for {
		select {
		case message, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				m.logger.Error("WebSocket write error", "error", err)
				conn.Close() // unblocks readPump
				drain(send)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.logger.Error("WebSocket ping error", "error", err)
				conn.Close()
				drain(send)
				return
			}
		}
	}
}

// drain consumes the queue until serve closes it so queued sends never block.
func drain(send <-chan []byte) {
	for range send {
	}
}

func (m *Manager) setState(ctx context.Context, ev Event) {
	m.mu.Lock()
	if m.state == ev.State && ev.Err == nil && ev.RetryIn == 0 {
		m.mu.Unlock()
		return
	}
	m.state = ev.State
	m.mu.Unlock()

	metrics.SetConnectionState(ev.State.String(), stateNames())
	m.emit(ctx, ev)
}

// emit delivers ev unless ctx is done first. Shutdown transitions are still offered without
// blocking so the consumer can observe them.
func (m *Manager) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		select {
		case m.events <- ev:
		default:
		}
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func stateNames() []string {
	names := make([]string, len(AllStates))
	for i, s := range AllStates {
		names[i] = s.String()
	}
	return names
}
