package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a string action.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownAction is returned for well-formed frames with an action this client ignores.
	ErrUnknownAction = errors.New("unknown action")
)

// Frame is a raw inbound frame: the action plus the remaining fields as generic JSON.
type Frame struct {
	Action string
	Fields map[string]any
}

// ParseFrame splits a text frame into its action and generic fields.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	action, ok := fields["action"].(string)
	if !ok || action == "" {
		return Frame{}, fmt.Errorf("%w: missing action", ErrMalformed)
	}
	return Frame{Action: action, Fields: fields}, nil
}

// Decode parses a server frame into one of the Message types.
func Decode(data []byte) (Message, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return nil, err
	}
	return frame.Message()
}

// Message converts the generic fields into the typed message for the frame's action.
func (f Frame) Message() (Message, error) {
	switch f.Action {
	case ActionJoinGame:
		var m JoinGame
		if err := decodeFields(f.Fields, &m); err != nil {
			return nil, err
		}
		fillPlayerIDs(m.Players)
		fillAvatarNames(m.Avatars)
		return m, nil
	case ActionPlayersMoved:
		var m PlayersMoved
		if err := decodeFields(f.Fields, &m); err != nil {
			return nil, err
		}
		fillPlayerIDs(m.Players)
		return m, nil
	case ActionPlayerJoined:
		var m PlayerJoined
		if err := decodeFields(f.Fields, &m); err != nil {
			return nil, err
		}
		if m.Player.ID == "" {
			return nil, fmt.Errorf("%w: player_joined without player id", ErrMalformed)
		}
		if m.Avatar != nil && m.Avatar.Name == "" {
			m.Avatar.Name = m.Player.Avatar
		}
		return m, nil
	case ActionPlayerLeft:
		var m PlayerLeft
		if err := decodeFields(f.Fields, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, f.Action)
	}
}

// decodeFields maps the generic JSON fields onto out using the json struct tags.
func decodeFields(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Roster entries are keyed by id; the key wins when the body omits it.
func fillPlayerIDs(players map[string]Player) {
	for id, p := range players {
		if p.ID == "" {
			p.ID = id
			players[id] = p
		}
	}
}

func fillAvatarNames(avatars map[string]Avatar) {
	for name, a := range avatars {
		if a.Name == "" {
			a.Name = name
			avatars[name] = a
		}
	}
}
