// Package session holds the client's state for one running game: the mirrored world, the
// camera and viewport, the redraw flag, and the text shown in the HUD. It applies connection
// events and server messages; everything runs on the game loop goroutine.
package session

import (
	"errors"
	"fmt"
	stlog "log/slog"
	"time"

	"github.com/hako/durafmt"
	"golang.org/x/time/rate"

	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/metrics"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/protocol"
	"github.com/irishsmurf/go-mmo-client/world"
)

// Options configures a Session.
type Options struct {
	Username string
	Viewport camera.Size
	World    camera.Size // fallback until the background image is known
	Logger   *stlog.Logger
	Now      func() time.Time
}

// Session is the explicitly owned client state. It is not safe for concurrent use.
type Session struct {
	logger   *stlog.Logger
	now      func() time.Time
	username string
	badFrame *rate.Limiter

	store    *world.Store
	viewport camera.Size
	world    camera.Size
	cam      camera.Camera

	localX, localY float64
	hasLocal       bool

	redraw  bool
	loading bool
	joined  bool // a join was accepted on the current connection

	conn        netclient.State
	connectedAt time.Time
	status      string
	statusErr   bool
	info        string
	bytesIn     uint64
}

// New returns a session waiting for its first connection.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = stlog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		logger:   opts.Logger.With("component", "session"),
		now:      opts.Now,
		username: opts.Username,
		badFrame: rate.NewLimiter(rate.Every(10*time.Second), 3),
		store:    world.NewStore(),
		viewport: opts.Viewport,
		world:    opts.World,
		redraw:   true,
		loading:  true,
		conn:     netclient.Disconnected,
		status:   "Connecting...",
	}
	s.recomputeInfo()
	return s
}

// HandleEvent applies one connection manager event.
func (s *Session) HandleEvent(ev netclient.Event) {
	switch ev.Kind {
	case netclient.EventState:
		s.onState(ev)
	case netclient.EventMessage:
		s.HandleFrame(ev.Data)
	}
}

func (s *Session) onState(ev netclient.Event) {
	s.conn = ev.State
	switch ev.State {
	case netclient.Connecting:
		s.joined = false
		s.setStatus("Connecting to server...", false)
	case netclient.Connected:
		s.connectedAt = s.now()
		s.setStatus(fmt.Sprintf("Connected. Joining as %s...", s.username), false)
	case netclient.Error:
		msg := "Connection error"
		if ev.Err != nil {
			msg = fmt.Sprintf("Connection error: %v", ev.Err)
		}
		s.setStatus(msg, true)
	case netclient.Disconnected:
		s.joined = false
		s.connectedAt = time.Time{}
		msg := "Disconnected from server."
		if ev.RetryIn > 0 {
			msg = fmt.Sprintf("Disconnected from server. Reconnecting in %s...", durafmt.Parse(ev.RetryIn).String())
		}
		s.setStatus(msg, true)
	}
	s.redraw = true
}

// HandleFrame decodes and applies one inbound frame. Malformed frames and unknown actions
// are logged and dropped.
func (s *Session) HandleFrame(data []byte) {
	s.bytesIn += uint64(len(data))
	msg, err := protocol.Decode(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownAction):
		metrics.ReceivedMessages.WithLabelValues("unknown").Inc()
		s.logger.Debug("Ignoring unhandled server message", "error", err)
		return
	case err != nil:
		metrics.ReceivedMessages.WithLabelValues("malformed").Inc()
		if s.badFrame.Allow() {
			s.logger.Warn("Dropping malformed server message", "error", err, "bytes", len(data))
		}
		return
	}
	metrics.ReceivedMessages.WithLabelValues(msg.Action()).Inc()
	s.Apply(msg)
}

// Apply runs the reconciliation rule for msg.
func (s *Session) Apply(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.JoinGame:
		s.applyJoin(m)
	case protocol.PlayersMoved:
		s.afterChange(s.store.ApplyMoved(m.Players))
	case protocol.PlayerJoined:
		s.logger.Debug("Player joined", "playerId", m.Player.ID, "username", m.Player.Username)
		s.afterChange(s.store.ApplyJoined(m.Player, m.Avatar))
	case protocol.PlayerLeft:
		s.logger.Debug("Player left", "playerId", m.PlayerID)
		s.afterChange(s.store.ApplyLeft(m.PlayerID))
	default:
		s.logger.Debug("Ignoring message", "action", msg.Action())
	}
}

func (s *Session) applyJoin(m protocol.JoinGame) {
	if !m.Success {
		reason := m.Error
		if reason == "" {
			reason = "unknown reason"
		}
		s.logger.Warn("Join rejected", "reason", reason)
		s.setStatus("Could not join: "+reason, true)
		s.redraw = true
		return
	}
	if s.joined && m.PlayerID != s.store.LocalID() {
		s.logger.Warn("Ignoring second join with a different player id", "current", s.store.LocalID(), "received", m.PlayerID)
		return
	}
	s.joined = true
	s.loading = false
	s.logger.Info("Joined game", "playerId", m.PlayerID, "players", len(m.Players), "avatars", len(m.Avatars))
	s.setStatus("", false)
	s.afterChange(s.store.ApplyJoin(m.PlayerID, m.Players, m.Avatars))
}

// afterChange recomputes everything derived from the roster.
func (s *Session) afterChange(c world.Change) {
	if !c.Changed {
		return
	}
	if c.LocalAffected {
		s.recomputeLocal()
	}
	s.recomputeCamera()
	s.recomputeInfo()
	s.redraw = true
}

// recomputeLocal refreshes the cached local position. Once the local player is gone the camera
// stays where it was until the player is known again.
func (s *Session) recomputeLocal() {
	if p, ok := s.store.Local(); ok {
		s.localX, s.localY, s.hasLocal = p.X, p.Y, true
		return
	}
	s.localX, s.localY, s.hasLocal = 0, 0, false
}

func (s *Session) recomputeCamera() {
	if !s.hasLocal {
		return
	}
	s.cam = camera.Follow(s.localX, s.localY, s.viewport, s.world)
}

func (s *Session) recomputeInfo() {
	s.info = fmt.Sprintf("Players online: %d", s.store.Count())
	if local, ok := s.store.Local(); ok {
		s.info += fmt.Sprintf(" | You: %s", local.Username)
	}
}

func (s *Session) setStatus(text string, isErr bool) {
	s.status = text
	s.statusErr = isErr
}

// Resize records a new viewport size.
func (s *Session) Resize(w, h float64) {
	v := camera.Size{W: w, H: h}
	if v == s.viewport {
		return
	}
	s.viewport = v
	s.recomputeCamera()
	s.redraw = true
}

// SetWorldSize records the world bounds, normally the background image size.
func (s *Session) SetWorldSize(w, h float64) {
	ws := camera.Size{W: w, H: h}
	if ws == s.world {
		return
	}
	s.world = ws
	s.recomputeCamera()
	s.redraw = true
}

// MarkDirty requests a redraw on the next frame.
func (s *Session) MarkDirty() { s.redraw = true }

// TakeRedraw reports whether a redraw is pending and clears the flag.
func (s *Session) TakeRedraw() bool {
	r := s.redraw
	s.redraw = false
	return r
}

// RedrawPending reports the flag without clearing it.
func (s *Session) RedrawPending() bool { return s.redraw }

func (s *Session) Store() *world.Store         { return s.store }
func (s *Session) Camera() camera.Camera       { return s.cam }
func (s *Session) Viewport() camera.Size       { return s.viewport }
func (s *Session) WorldSize() camera.Size      { return s.world }
func (s *Session) Loading() bool               { return s.loading }
func (s *Session) Joined() bool                { return s.joined }
func (s *Session) Connection() netclient.State { return s.conn }
func (s *Session) Info() string                { return s.info }
func (s *Session) BytesReceived() uint64       { return s.bytesIn }

// Status is the banner text; isErr selects the error colour.
func (s *Session) Status() (text string, isErr bool) { return s.status, s.statusErr }

// LocalPosition returns the cached position of the local player.
func (s *Session) LocalPosition() (x, y float64, ok bool) {
	return s.localX, s.localY, s.hasLocal
}

// ConnectedFor is the age of the current connection, zero when not connected.
func (s *Session) ConnectedFor() time.Duration {
	if s.connectedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.connectedAt)
}
