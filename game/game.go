// Package game is the ebiten frame loop: Update applies network events, decoded images and
// keyboard input to the session; Draw repaints only when something visible changed.
package game

import (
	stlog "log/slog"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/irishsmurf/go-mmo-client/input"
	"github.com/irishsmurf/go-mmo-client/metrics"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/render"
	"github.com/irishsmurf/go-mmo-client/session"
)

const (
	// maxEventsPerTick bounds the work done in one Update after a burst of frames.
	maxEventsPerTick = 512
	// debugRefreshTicks repaints the debug line about twice per second.
	debugRefreshTicks = 30
)

// Recorder receives every inbound frame, e.g. to write a wire trace.
type Recorder interface {
	Record(data []byte) error
}

// Options wires a Game together.
type Options struct {
	Session  *session.Session
	Events   <-chan netclient.Event
	Sender   input.Sender
	Renderer *render.Renderer
	Frames   *render.Frames
	Recorder Recorder // optional
	Logger   *stlog.Logger
}

// Game implements ebiten.Game.
type Game struct {
	session    *session.Session
	events     <-chan netclient.Event
	controller *input.Controller
	renderer   *render.Renderer
	frames     *render.Frames
	recorder   Recorder
	logger     *stlog.Logger

	keys     []ebiten.Key
	released []ebiten.Key
	focused  bool
	ticks    int
}

// New builds a Game.
func New(opts Options) *Game {
	if opts.Logger == nil {
		opts.Logger = stlog.Default()
	}
	return &Game{
		session:    opts.Session,
		events:     opts.Events,
		controller: input.NewController(opts.Sender, nil),
		renderer:   opts.Renderer,
		frames:     opts.Frames,
		recorder:   opts.Recorder,
		logger:     opts.Logger.With("component", "game"),
		focused:    true,
	}
}

// --- Ebitengine Game Loop Functions ---

// Update applies pending events and input. It never draws.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	g.ticks++

	g.drainEvents()
	if g.frames != nil && g.frames.Drain() > 0 {
		g.session.MarkDirty()
	}
	if g.renderer != nil {
		g.renderer.Sync(g.session)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF3) && g.renderer != nil {
		g.renderer.ShowDebug = !g.renderer.ShowDebug
		g.session.MarkDirty()
	}
	if g.renderer != nil && g.renderer.ShowDebug && g.ticks%debugRefreshTicks == 0 {
		g.session.MarkDirty()
	}

	g.handleInput()
	return nil
}

// Draw repaints the screen only when the session asked for it. The screen is not cleared
// between frames, so a skipped Draw keeps the previous picture.
func (g *Game) Draw(screen *ebiten.Image) {
	if !g.session.TakeRedraw() {
		metrics.SkippedFrames.Inc()
		return
	}
	metrics.DrawPasses.Inc()
	g.renderer.Draw(screen, g.session)
}

// Layout follows the window size, so the viewport is the window.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.session.Resize(float64(outsideWidth), float64(outsideHeight))
	return outsideWidth, outsideHeight
}

// --- Helper Functions ---

// drainEvents applies every event the connection manager has queued, in arrival order. Losing
// the connection forgets the held keys.
func (g *Game) drainEvents() int {
	n := 0
	for n < maxEventsPerTick {
		select {
		case ev, ok := <-g.events:
			if !ok {
				g.events = nil
				return n
			}
			n++
			if ev.Kind == netclient.EventMessage && g.recorder != nil {
				if err := g.recorder.Record(ev.Data); err != nil {
					g.logger.Warn("Wire trace disabled", "error", err)
					g.recorder = nil
				}
			}
			if ev.Kind == netclient.EventState && ev.State != netclient.Connected {
				// Keys still held are re-sent as moves on the next tick, after the new join.
				g.controller.Reset()
			}
			g.session.HandleEvent(ev)
		default:
			return n
		}
	}
	return n
}

// handleInput feeds ebiten key state to the controller. Every held key is reported each tick
// like a key repeat; the controller ignores repeats.
func (g *Game) handleInput() {
	if !ebiten.IsFocused() {
		if g.focused {
			g.controller.ReleaseAll()
			g.focused = false
		}
		return
	}
	g.focused = true

	g.keys = inpututil.AppendPressedKeys(g.keys[:0])
	g.released = inpututil.AppendJustReleasedKeys(g.released[:0])
	g.feedKeys(g.keys, g.released)
}

// feedKeys hands one tick of key state to the controller. Until a join is accepted on the
// current connection the server ignores movement, so keys are not marked held yet.
func (g *Game) feedKeys(pressed, released []ebiten.Key) {
	if !g.session.Joined() {
		g.controller.Reset()
		return
	}
	for _, k := range pressed {
		g.controller.KeyDown(k.String())
	}
	for _, k := range released {
		g.controller.KeyUp(k.String())
	}
}
