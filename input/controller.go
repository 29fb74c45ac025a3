// Package input turns key presses into move and stop commands.
package input

import "github.com/irishsmurf/go-mmo-client/protocol"

// Sender transmits commands to the server. Implementations drop commands they cannot send.
type Sender interface {
	Send(cmd protocol.Command)
}

// DefaultBindings maps ebiten key names to movement directions.
var DefaultBindings = map[string]protocol.Direction{
	"ArrowUp":    protocol.DirUp,
	"ArrowDown":  protocol.DirDown,
	"ArrowLeft":  protocol.DirLeft,
	"ArrowRight": protocol.DirRight,
	"W":          protocol.DirUp,
	"S":          protocol.DirDown,
	"A":          protocol.DirLeft,
	"D":          protocol.DirRight,
}

// Controller tracks held movement keys and emits at most one move per press and one stop
// when the last movement key is released. Key repeat is absorbed.
type Controller struct {
	bindings map[string]protocol.Direction
	held     map[string]bool
	out      Sender
}

// NewController builds a controller; nil bindings means DefaultBindings.
func NewController(out Sender, bindings map[string]protocol.Direction) *Controller {
	if bindings == nil {
		bindings = DefaultBindings
	}
	return &Controller{
		bindings: bindings,
		held:     make(map[string]bool),
		out:      out,
	}
}

// Keys lists the key names the controller reacts to.
func (c *Controller) Keys() []string {
	keys := make([]string, 0, len(c.bindings))
	for k := range c.bindings {
		keys = append(keys, k)
	}
	return keys
}

// KeyDown handles a press or a repeat of key. It reports whether a command was emitted.
func (c *Controller) KeyDown(key string) bool {
	dir, ok := c.bindings[key]
	if !ok || c.held[key] {
		return false
	}
	c.held[key] = true
	c.out.Send(protocol.MoveCommand(dir))
	return true
}

// KeyUp handles a release of key. A stop is emitted once no movement direction is held.
func (c *Controller) KeyUp(key string) bool {
	if _, ok := c.bindings[key]; !ok {
		return false
	}
	c.held[key] = false
	if c.anyDirectionHeld() {
		return false
	}
	c.out.Send(protocol.StopCommand())
	return true
}

// Reset forgets every held key without emitting anything.
func (c *Controller) Reset() {
	for k := range c.held {
		delete(c.held, k)
	}
}

// ReleaseAll releases every held key, emitting one stop if any movement was active. Used when
// the window loses focus and key-up events would otherwise be missed.
func (c *Controller) ReleaseAll() bool {
	moving := c.anyDirectionHeld()
	c.Reset()
	if !moving {
		return false
	}
	c.out.Send(protocol.StopCommand())
	return true
}

// Held reports whether key is recorded as held.
func (c *Controller) Held(key string) bool { return c.held[key] }

func (c *Controller) anyDirectionHeld() bool {
	active := make(map[protocol.Direction]bool, 4)
	for key, down := range c.held {
		if down {
			active[c.bindings[key]] = true
		}
	}
	return active[protocol.DirUp] || active[protocol.DirDown] || active[protocol.DirLeft] || active[protocol.DirRight]
}
