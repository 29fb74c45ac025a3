// Package devserver is a small game server speaking the client protocol, for local runs and
// integration tests. Players walk at a fixed speed while a direction is held; positions are
// broadcast every tick.
package devserver

import (
	"context"
	"encoding/json"
	stlog "log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/irishsmurf/go-mmo-client/protocol"
)

const (
	defaultTick  = 100 * time.Millisecond
	defaultSpeed = 8.0 // world units per tick
)

// Options configures a Hub.
type Options struct {
	WorldWidth, WorldHeight float64
	Tick                    time.Duration
	Speed                   float64
	Avatars                 map[string]protocol.Avatar // nil means GenerateAvatars()
	Logger                  *stlog.Logger
	Rand                    *rand.Rand
}

type clientCommand struct {
	client *Client
	cmd    protocol.Command
}

type playerState struct {
	protocol.Player
	moving protocol.Direction
	frames int
}

// Hub owns every player. All state is touched only by Run.
type Hub struct {
	opts    Options
	logger  *stlog.Logger
	rnd     *rand.Rand
	avatars map[string]protocol.Avatar
	names   []string

	clients map[*Client]bool
	players map[*Client]*playerState

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	done       chan struct{}
}

// NewHub creates a hub; call Run to start it.
func NewHub(opts Options) *Hub {
	if opts.WorldWidth <= 0 {
		opts.WorldWidth = 2000
	}
	if opts.WorldHeight <= 0 {
		opts.WorldHeight = 2000
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.Speed <= 0 {
		opts.Speed = defaultSpeed
	}
	if opts.Avatars == nil {
		opts.Avatars = GenerateAvatars()
	}
	if opts.Logger == nil {
		opts.Logger = stlog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	names := make([]string, 0, len(opts.Avatars))
	for name := range opts.Avatars {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Hub{
		opts:       opts,
		logger:     opts.Logger.With("component", "hub"),
		rnd:        opts.Rand,
		avatars:    opts.Avatars,
		names:      names,
		clients:    make(map[*Client]bool),
		players:    make(map[*Client]*playerState),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event processing loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Hub started", "tick", h.opts.Tick)
	ticker := time.NewTicker(h.opts.Tick)
	defer func() {
		ticker.Stop()
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
		h.logger.Info("Hub stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			h.handleUnregister(client)
		case cc := <-h.commands:
			h.handleCommand(cc.client, cc.cmd)
		case <-ticker.C:
			h.runGameTick()
		}
	}
}

// submit hands a client event to Run, giving up once the hub has stopped.
func submit[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleUnregister(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	close(client.send)
	p, joined := h.players[client]
	if !joined {
		return
	}
	delete(h.players, client)
	client.logger.Info("Player left", "playerId", p.ID)
	h.broadcast(map[string]any{"action": protocol.ActionPlayerLeft, "playerId": p.ID}, nil)
}

func (h *Hub) handleCommand(c *Client, cmd protocol.Command) {
	if !h.clients[c] {
		return
	}
	switch cmd.Action {
	case protocol.ActionJoinGame:
		h.handleJoin(c, cmd.Username)
	case protocol.ActionMove:
		if p, ok := h.players[c]; ok && cmd.Direction.Valid() {
			p.moving = cmd.Direction
		}
	case protocol.ActionStop:
		if p, ok := h.players[c]; ok {
			p.moving = ""
		}
	default:
		c.logger.Warn("Received unknown client command", "action", cmd.Action)
	}
}

func (h *Hub) handleJoin(c *Client, username string) {
	if _, ok := h.players[c]; ok {
		c.sendJSON(map[string]any{"action": protocol.ActionJoinGame, "success": false, "error": "Already joined"})
		return
	}
	if username == "" {
		c.sendJSON(map[string]any{"action": protocol.ActionJoinGame, "success": false, "error": "Username required"})
		return
	}
	for _, other := range h.players {
		if other.Username == username {
			c.sendJSON(map[string]any{"action": protocol.ActionJoinGame, "success": false, "error": "Username taken"})
			return
		}
	}

	p := &playerState{Player: protocol.Player{
		ID:       "player_" + uuid.New().String()[:8],
		Username: username,
		X:        float64(int(h.rnd.Float64() * h.opts.WorldWidth)),
		Y:        float64(int(h.rnd.Float64() * h.opts.WorldHeight)),
		Facing:   protocol.DefaultFacing,
	}}
	if len(h.names) > 0 {
		p.Avatar = h.names[h.rnd.Intn(len(h.names))]
		p.frames = len(h.avatars[p.Avatar].FramesFor(protocol.DefaultFacing))
	}
	h.players[c] = p
	c.logger = c.logger.With("playerId", p.ID)
	c.logger.Info("Player joined", "username", username, "x", p.X, "y", p.Y)

	roster := make(map[string]protocol.Player, len(h.players))
	for _, other := range h.players {
		roster[other.ID] = other.Player
	}
	c.sendJSON(map[string]any{
		"action":   protocol.ActionJoinGame,
		"success":  true,
		"playerId": p.ID,
		"players":  roster,
		"avatars":  h.avatars,
	})

	joined := map[string]any{"action": protocol.ActionPlayerJoined, "player": p.Player}
	if a, ok := h.avatars[p.Avatar]; ok {
		joined["avatar"] = a
	}
	h.broadcast(joined, c)
}

func (h *Hub) runGameTick() {
	moved := make(map[string]protocol.Player)
	for _, p := range h.players {
		if p.moving == "" {
			continue
		}
		h.step(p)
		moved[p.ID] = p.Player
	}
	if len(moved) == 0 {
		return
	}
	h.broadcast(map[string]any{"action": protocol.ActionPlayersMoved, "players": moved}, nil)
}

// step advances one player by one tick in its held direction.
func (h *Hub) step(p *playerState) {
	switch p.moving {
	case protocol.DirUp:
		p.Y -= h.opts.Speed
		p.Facing = protocol.FacingNorth
	case protocol.DirDown:
		p.Y += h.opts.Speed
		p.Facing = protocol.FacingSouth
	case protocol.DirLeft:
		p.X -= h.opts.Speed
		p.Facing = protocol.FacingWest
	case protocol.DirRight:
		p.X += h.opts.Speed
		p.Facing = protocol.FacingEast
	}
	p.X = clamp(p.X, 0, h.opts.WorldWidth)
	p.Y = clamp(p.Y, 0, h.opts.WorldHeight)
	if a, ok := h.avatars[p.Avatar]; ok {
		p.frames = len(a.FramesFor(p.Facing))
	}
	if p.frames > 0 {
		p.AnimationFrame = (p.AnimationFrame + 1) % p.frames
	}
}

// broadcast queues msg for every joined client except skip.
func (h *Hub) broadcast(msg map[string]any, skip *Client) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", "error", err)
		return
	}
	for c := range h.players {
		if c == skip {
			continue
		}
		c.queue(data)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
