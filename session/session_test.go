package session

import (
	"errors"
	"io"
	stlog "log/slog"
	"strings"
	"testing"
	"time"

	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/protocol"
)

func newTestSession(now func() time.Time) *Session {
	return New(Options{
		Username: "ann",
		Viewport: camera.Size{W: 800, H: 600},
		World:    camera.Size{W: 2000, H: 2000},
		Logger:   stlog.New(stlog.NewTextHandler(io.Discard, nil)),
		Now:      now,
	})
}

const joinFrame = `{"action":"join_game","success":true,"playerId":"p1",
	"players":{"p1":{"id":"p1","username":"ann","x":100,"y":100,"facing":"south","animationFrame":0,"avatar":"knight"}},
	"avatars":{"knight":{"name":"knight","frames":{"south":["k_s0.png"]}}}}`

func TestJoinAcceptedCentersCamera(t *testing.T) {
	s := newTestSession(nil)
	s.TakeRedraw()
	if !s.Loading() {
		t.Fatalf("loading overlay should show before the first join")
	}

	s.HandleEvent(netclient.Event{Kind: netclient.EventMessage, Data: []byte(joinFrame)})

	if got := s.Store().LocalID(); got != "p1" {
		t.Fatalf("local id = %q", got)
	}
	if s.Loading() {
		t.Fatalf("loading overlay still shown after join")
	}
	// (100,100) is near the corner: centring is clamped to the world origin.
	if cam := s.Camera(); cam.X != 0 || cam.Y != 0 {
		t.Fatalf("camera = %+v", cam)
	}
	if x, y, ok := s.LocalPosition(); !ok || x != 100 || y != 100 {
		t.Fatalf("local position = %v,%v,%v", x, y, ok)
	}
	if !strings.Contains(s.Info(), "Players online: 1") {
		t.Fatalf("info = %q", s.Info())
	}
	if !s.TakeRedraw() {
		t.Fatalf("join did not request a redraw")
	}
	if s.TakeRedraw() {
		t.Fatalf("TakeRedraw did not clear the flag")
	}
	if _, ok := s.Store().Avatar("knight"); !ok {
		t.Fatalf("avatar table not installed")
	}
}

func TestCameraFollowsLocalPlayer(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(joinFrame))

	s.Apply(protocol.PlayersMoved{Players: map[string]protocol.Player{
		"p1": {ID: "p1", Username: "ann", X: 1000, Y: 900, Facing: protocol.FacingEast},
	}})
	if cam := s.Camera(); cam.X != 600 || cam.Y != 600 {
		t.Fatalf("camera = %+v, want {600 600}", cam)
	}

	s.Resize(1000, 1000)
	if cam := s.Camera(); cam.X != 500 || cam.Y != 400 {
		t.Fatalf("camera after resize = %+v, want {500 400}", cam)
	}

	s.SetWorldSize(1200, 1200)
	if cam := s.Camera(); cam.X != 200 || cam.Y != 200 {
		t.Fatalf("camera after world resize = %+v, want {200 200}", cam)
	}
	if ws := s.WorldSize(); ws != (camera.Size{W: 1200, H: 1200}) {
		t.Fatalf("world size = %+v", ws)
	}
}

func TestOtherPlayerMoveKeepsCamera(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(joinFrame))
	s.TakeRedraw()
	before := s.Camera()

	s.Apply(protocol.PlayerJoined{Player: protocol.Player{ID: "p2", Username: "bob", X: 50, Y: 60, Avatar: "knight"}})
	if s.Camera() != before {
		t.Fatalf("camera moved for another player")
	}
	if !s.TakeRedraw() {
		t.Fatalf("player join did not request a redraw")
	}
	if !strings.Contains(s.Info(), "Players online: 2") {
		t.Fatalf("info = %q", s.Info())
	}

	// Identical position update: nothing visible changed.
	s.Apply(protocol.PlayersMoved{Players: map[string]protocol.Player{
		"p2": {ID: "p2", Username: "bob", X: 50, Y: 60, Avatar: "knight"},
	}})
	if s.RedrawPending() {
		t.Fatalf("no-op update requested a redraw")
	}
}

func TestUnknownPlayerLeftIsNoOp(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(joinFrame))
	s.TakeRedraw()
	before := s.Store().Snapshot()

	s.HandleFrame([]byte(`{"action":"player_left","playerId":"p9"}`))

	after := s.Store().Snapshot()
	if len(after) != len(before) {
		t.Fatalf("roster changed: %v -> %v", before, after)
	}
	if s.RedrawPending() {
		t.Fatalf("no-op leave requested a redraw")
	}
}

func TestLocalPlayerLeftClearsPosition(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(joinFrame))
	s.Apply(protocol.PlayersMoved{Players: map[string]protocol.Player{
		"p1": {ID: "p1", Username: "ann", X: 1000, Y: 900},
	}})
	cam := s.Camera()
	s.TakeRedraw()

	s.Apply(protocol.PlayerLeft{PlayerID: "p1"})

	if x, y, ok := s.LocalPosition(); ok {
		t.Fatalf("local position = %v,%v after the local player left", x, y)
	}
	if got := s.Camera(); got != cam {
		t.Fatalf("camera moved to %+v, want %+v", got, cam)
	}
	if strings.Contains(s.Info(), "You:") {
		t.Fatalf("info still names the local player: %q", s.Info())
	}
	if !s.TakeRedraw() {
		t.Fatalf("leave did not request a redraw")
	}

	// The local player coming back through a move restores the cache.
	s.Apply(protocol.PlayersMoved{Players: map[string]protocol.Player{
		"p1": {ID: "p1", Username: "ann", X: 300, Y: 400},
	}})
	if x, y, ok := s.LocalPosition(); !ok || x != 300 || y != 400 {
		t.Fatalf("local position = %v,%v,%v", x, y, ok)
	}
}

func TestJoinRejectedLeavesStore(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(`{"action":"join_game","success":false,"error":"Username taken"}`))

	if s.Store().Count() != 0 || s.Store().LocalID() != "" {
		t.Fatalf("store modified by rejected join")
	}
	text, isErr := s.Status()
	if !isErr || !strings.Contains(text, "Username taken") {
		t.Fatalf("status = %q (error %v)", text, isErr)
	}
	if !s.Loading() {
		t.Fatalf("loading overlay hidden after a rejected join")
	}
}

func TestBadFramesIgnored(t *testing.T) {
	s := newTestSession(nil)
	s.HandleFrame([]byte(joinFrame))
	s.TakeRedraw()

	for _, frame := range []string{
		`{"action":"chat","text":"hi"}`,
		`not json`,
		`{"players":{}}`,
		`{"action":"players_moved","players":"nope"}`,
	} {
		s.HandleFrame([]byte(frame))
	}
	if s.Store().Count() != 1 || s.RedrawPending() {
		t.Fatalf("ignored frames changed the session")
	}
	if s.BytesReceived() == 0 {
		t.Fatalf("bytes received not counted")
	}
}

func TestSecondJoinWithDifferentIDIgnored(t *testing.T) {
	s := newTestSession(nil)
	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Connected})
	s.HandleFrame([]byte(joinFrame))

	s.Apply(protocol.JoinGame{Success: true, PlayerID: "p7", Players: map[string]protocol.Player{
		"p7": {ID: "p7", Username: "other"},
	}})
	if s.Store().LocalID() != "p1" {
		t.Fatalf("local id changed within a connection: %q", s.Store().LocalID())
	}

	// A new connection may establish a new identity.
	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Disconnected, RetryIn: 3 * time.Second})
	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Connecting})
	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Connected})
	s.Apply(protocol.JoinGame{Success: true, PlayerID: "p7", Players: map[string]protocol.Player{
		"p7": {ID: "p7", Username: "ann", X: 10, Y: 10},
	}})
	if s.Store().LocalID() != "p7" {
		t.Fatalf("rejoin after reconnect not applied: %q", s.Store().LocalID())
	}
}

func TestConnectionStatusText(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSession(func() time.Time { return now })

	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Connected})
	now = now.Add(90 * time.Second)
	if d := s.ConnectedFor(); d != 90*time.Second {
		t.Fatalf("connected for = %s", d)
	}
	if text, _ := s.Status(); !strings.Contains(text, "ann") {
		t.Fatalf("connected status = %q", text)
	}

	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Error, Err: errors.New("boom")})
	if text, isErr := s.Status(); !isErr || !strings.Contains(text, "boom") {
		t.Fatalf("error status = %q", text)
	}

	s.TakeRedraw()
	s.HandleEvent(netclient.Event{Kind: netclient.EventState, State: netclient.Disconnected, RetryIn: 3 * time.Second})
	text, isErr := s.Status()
	if !isErr || !strings.Contains(text, "3 seconds") {
		t.Fatalf("disconnected status = %q", text)
	}
	if s.Connection() != netclient.Disconnected || s.ConnectedFor() != 0 {
		t.Fatalf("connection = %s, uptime %s", s.Connection(), s.ConnectedFor())
	}
	if !s.RedrawPending() {
		t.Fatalf("status change did not request a redraw")
	}
}
