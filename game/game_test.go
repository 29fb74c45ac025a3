package game

import (
	"errors"
	"io"
	stlog "log/slog"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/protocol"
	"github.com/irishsmurf/go-mmo-client/session"
)

type nopSender struct{}

func (nopSender) Send(protocol.Command) {}

type recordingSender struct {
	sent []protocol.Command
}

func (r *recordingSender) Send(cmd protocol.Command) { r.sent = append(r.sent, cmd) }

type traceRecorder struct {
	frames []string
	fail   bool
}

func (r *traceRecorder) Record(data []byte) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.frames = append(r.frames, string(data))
	return nil
}

func newTestGame(events chan netclient.Event, rec Recorder) (*Game, *session.Session) {
	logger := stlog.New(stlog.NewTextHandler(io.Discard, nil))
	s := session.New(session.Options{
		Username: "ann",
		Viewport: camera.Size{W: 800, H: 600},
		World:    camera.Size{W: 2000, H: 2000},
		Logger:   logger,
	})
	g := New(Options{Session: s, Events: events, Sender: nopSender{}, Recorder: rec, Logger: logger})
	return g, s
}

func TestDrainEventsAppliesInOrder(t *testing.T) {
	events := make(chan netclient.Event, 8)
	rec := &traceRecorder{}
	g, s := newTestGame(events, rec)

	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Connected}
	events <- netclient.Event{Kind: netclient.EventMessage, Data: []byte(`{"action":"join_game","success":true,"playerId":"p1","players":{"p1":{"x":1,"y":2}},"avatars":{}}`)}
	events <- netclient.Event{Kind: netclient.EventMessage, Data: []byte(`{"action":"player_joined","player":{"id":"p2","x":5,"y":5}}`)}
	events <- netclient.Event{Kind: netclient.EventMessage, Data: []byte(`{"action":"player_left","playerId":"p2"}`)}

	if n := g.drainEvents(); n != 4 {
		t.Fatalf("drained %d events", n)
	}
	if s.Store().LocalID() != "p1" || s.Store().Count() != 1 {
		t.Fatalf("roster = %v", s.Store().Snapshot())
	}
	if len(rec.frames) != 3 {
		t.Fatalf("recorded %d frames", len(rec.frames))
	}
	if g.drainEvents() != 0 {
		t.Fatalf("empty channel drained events")
	}
}

func TestDrainEventsClosedChannel(t *testing.T) {
	events := make(chan netclient.Event)
	g, _ := newTestGame(events, nil)
	close(events)

	g.drainEvents()
	if g.events != nil {
		t.Fatalf("closed channel kept")
	}
	// A nil channel never becomes ready: later ticks are no-ops.
	if g.drainEvents() != 0 {
		t.Fatalf("drained from nil channel")
	}
}

func TestRecorderFailureDisablesTrace(t *testing.T) {
	events := make(chan netclient.Event, 2)
	rec := &traceRecorder{fail: true}
	g, s := newTestGame(events, rec)

	events <- netclient.Event{Kind: netclient.EventMessage, Data: []byte(`{"action":"join_game","success":true,"playerId":"p1","players":{},"avatars":{}}`)}
	g.drainEvents()
	if g.recorder != nil {
		t.Fatalf("failing recorder still attached")
	}
	if s.Store().LocalID() != "p1" {
		t.Fatalf("frame not applied after trace failure")
	}
}

func TestHeldKeyResentAfterReconnect(t *testing.T) {
	events := make(chan netclient.Event, 8)
	out := &recordingSender{}
	logger := stlog.New(stlog.NewTextHandler(io.Discard, nil))
	s := session.New(session.Options{Username: "ann", Logger: logger})
	g := New(Options{Session: s, Events: events, Sender: out, Logger: logger})

	g.controller.KeyDown("ArrowLeft")
	g.controller.KeyDown("ArrowLeft")
	if len(out.sent) != 1 {
		t.Fatalf("sent %v before the disconnect", out.sent)
	}

	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Disconnected}
	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Connecting}
	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Connected}
	g.drainEvents()

	if !g.controller.KeyDown("ArrowLeft") {
		t.Fatalf("held key not re-sent on the new connection")
	}
	want := []protocol.Command{protocol.MoveCommand(protocol.DirLeft), protocol.MoveCommand(protocol.DirLeft)}
	if len(out.sent) != len(want) || out.sent[1] != want[1] {
		t.Fatalf("sent %v, want %v", out.sent, want)
	}
}

func TestConnectedEventKeepsHeldKeys(t *testing.T) {
	events := make(chan netclient.Event, 1)
	out := &recordingSender{}
	logger := stlog.New(stlog.NewTextHandler(io.Discard, nil))
	g := New(Options{Session: session.New(session.Options{Logger: logger}), Events: events, Sender: out, Logger: logger})

	g.controller.KeyDown("ArrowUp")
	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Connected}
	g.drainEvents()

	if g.controller.KeyDown("ArrowUp") || len(out.sent) != 1 {
		t.Fatalf("repeat after a Connected event sent %v", out.sent)
	}
}

func TestKeysIgnoredUntilJoined(t *testing.T) {
	events := make(chan netclient.Event, 4)
	out := &recordingSender{}
	logger := stlog.New(stlog.NewTextHandler(io.Discard, nil))
	g := New(Options{Session: session.New(session.Options{Username: "ann", Logger: logger}), Events: events, Sender: out, Logger: logger})
	left := []ebiten.Key{ebiten.KeyArrowLeft}

	// Held while connecting: nothing sent, nothing remembered.
	events <- netclient.Event{Kind: netclient.EventState, State: netclient.Connected}
	g.drainEvents()
	g.feedKeys(left, nil)
	if len(out.sent) != 0 {
		t.Fatalf("sent %v before the join", out.sent)
	}

	events <- netclient.Event{Kind: netclient.EventMessage, Data: []byte(`{"action":"join_game","success":true,"playerId":"p1","players":{},"avatars":{}}`)}
	g.drainEvents()
	g.feedKeys(left, nil)
	g.feedKeys(left, nil)
	if len(out.sent) != 1 || out.sent[0] != protocol.MoveCommand(protocol.DirLeft) {
		t.Fatalf("sent %v after the join", out.sent)
	}

	g.feedKeys(nil, left)
	if len(out.sent) != 2 || out.sent[1] != protocol.StopCommand() {
		t.Fatalf("sent %v after release", out.sent)
	}
}
