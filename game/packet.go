package game

import (
	"encoding/json"
	"fmt"
)

// ClientCommand is the tagged union of messages a client may send over the
// wire. Only Move and CastSpell affect the simulation; Join and Chat decode
// successfully but are ignored by the tick pipeline.
type ClientCommand interface {
	clientCommand()
}

// MoveCommand requests the sending player's position be nudged by Dir.
// Dir is trusted as-is; the simulation does not normalize it.
type MoveCommand struct {
	Dir Vec2
}

// CastSpellCommand requests a projectile be cast toward Target.
type CastSpellCommand struct {
	Target Vec2
}

// JoinCommand carries a display name. Accepted for wire compatibility,
// ignored by the simulation (see spec §6).
type JoinCommand struct {
	Name string
}

// ChatCommand carries free text. Accepted, ignored by the simulation.
type ChatCommand struct {
	Text string
}

func (MoveCommand) clientCommand()      {}
func (CastSpellCommand) clientCommand() {}
func (JoinCommand) clientCommand()      {}
func (ChatCommand) clientCommand()      {}

// ParseClientCommand decodes one JSON text frame into a ClientCommand. It
// returns an error for malformed JSON, an object with no recognized key, or
// one with more than one key — callers are expected to silently drop the
// frame on error rather than propagate it to the client.
func ParseClientCommand(data []byte) (ClientCommand, error) {
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return nil, fmt.Errorf("decode client command: %w", err)
	}
	if len(variants) != 1 {
		return nil, fmt.Errorf("decode client command: expected exactly one tag, got %d", len(variants))
	}

	for tag, payload := range variants {
		switch tag {
		case "Move":
			var body struct {
				Dir Vec2 `json:"dir"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				return nil, fmt.Errorf("decode Move: %w", err)
			}
			return MoveCommand{Dir: body.Dir}, nil

		case "CastSpell":
			var body struct {
				Target Vec2 `json:"target"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				return nil, fmt.Errorf("decode CastSpell: %w", err)
			}
			return CastSpellCommand{Target: body.Target}, nil

		case "Join":
			var body struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				return nil, fmt.Errorf("decode Join: %w", err)
			}
			return JoinCommand{Name: body.Name}, nil

		case "Chat":
			var body struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				return nil, fmt.Errorf("decode Chat: %w", err)
			}
			return ChatCommand{Text: body.Text}, nil

		default:
			return nil, fmt.Errorf("decode client command: unknown tag %q", tag)
		}
	}
	panic("unreachable")
}

// PacketKind distinguishes the three Game Packet variants carried on the
// Command Bus.
type PacketKind int

const (
	PacketJoin PacketKind = iota
	PacketLeave
	PacketCommand
)

// GamePacket is the internal message the Command Bus carries from a
// connection task to the simulation. ConnID is the connection id for Join
// and Leave packets, and the id of the commanding connection for Command
// packets.
type GamePacket struct {
	Kind    PacketKind
	ConnID  uint32
	Command ClientCommand // only populated when Kind == PacketCommand
}

func JoinPacket(connID uint32) GamePacket {
	return GamePacket{Kind: PacketJoin, ConnID: connID}
}

func LeavePacket(connID uint32) GamePacket {
	return GamePacket{Kind: PacketLeave, ConnID: connID}
}

func CommandPacket(connID uint32, cmd ClientCommand) GamePacket {
	return GamePacket{Kind: PacketCommand, ConnID: connID, Command: cmd}
}
