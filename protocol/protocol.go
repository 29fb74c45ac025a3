// Package protocol defines the JSON text frames exchanged with the game server.
//
// Every frame is an object carrying a string "action" discriminator. The client sends
// join_game, move and stop; the server answers join_game and pushes players_moved,
// player_joined and player_left.
package protocol

import "encoding/json"

// Action names used on the wire.
const (
	ActionJoinGame     = "join_game"
	ActionMove         = "move"
	ActionStop         = "stop"
	ActionPlayersMoved = "players_moved"
	ActionPlayerJoined = "player_joined"
	ActionPlayerLeft   = "player_left"
)

// Direction is a logical movement direction sent with a move command.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// Valid reports whether d is one of the four movement directions.
func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

// Facing selects which frame set of an avatar is drawn.
type Facing string

const (
	FacingNorth Facing = "north"
	FacingSouth Facing = "south"
	FacingEast  Facing = "east"
	FacingWest  Facing = "west"

	// DefaultFacing is used when a player's facing has no registered frames.
	DefaultFacing = FacingSouth
)

// Player is the server's view of one participant.
type Player struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Facing         Facing  `json:"facing"`
	AnimationFrame int     `json:"animationFrame"`
	Avatar         string  `json:"avatar"`
}

// Avatar maps each facing to an ordered list of image resource references.
type Avatar struct {
	Name   string              `json:"name"`
	Frames map[Facing][]string `json:"frames"`
}

// FramesFor returns the frame list for facing, falling back to DefaultFacing.
func (a Avatar) FramesFor(f Facing) []string {
	if frames, ok := a.Frames[f]; ok && len(frames) > 0 {
		return frames
	}
	return a.Frames[DefaultFacing]
}

// --- Outbound ---

// Command is a client -> server frame.
type Command struct {
	Action    string    `json:"action"`
	Username  string    `json:"username,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// JoinCommand asks the server to place username in the world.
func JoinCommand(username string) Command {
	return Command{Action: ActionJoinGame, Username: username}
}

// MoveCommand starts movement in dir.
func MoveCommand(dir Direction) Command {
	return Command{Action: ActionMove, Direction: dir}
}

// StopCommand halts movement.
func StopCommand() Command {
	return Command{Action: ActionStop}
}

// Encode serializes the command as a JSON text frame.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// --- Inbound ---

// Message is a decoded server -> client frame.
type Message interface {
	Action() string
}

// JoinGame is the server's answer to a join request.
type JoinGame struct {
	Success  bool              `json:"success"`
	PlayerID string            `json:"playerId"`
	Players  map[string]Player `json:"players"`
	Avatars  map[string]Avatar `json:"avatars"`
	Error    string            `json:"error"`
}

// PlayersMoved carries a partial roster keyed by player id.
type PlayersMoved struct {
	Players map[string]Player `json:"players"`
}

// PlayerJoined announces a new player and, possibly, its avatar definition.
type PlayerJoined struct {
	Player Player  `json:"player"`
	Avatar *Avatar `json:"avatar"`
}

// PlayerLeft announces a departure.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

func (JoinGame) Action() string     { return ActionJoinGame }
func (PlayersMoved) Action() string { return ActionPlayersMoved }
func (PlayerJoined) Action() string { return ActionPlayerJoined }
func (PlayerLeft) Action() string   { return ActionPlayerLeft }
