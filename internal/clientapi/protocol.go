// Package clientapi implements the WebSocket transport for the Client
// API: connection upgrade, IDENTIFY handshake, and the JSON envelope that
// carries room.Command/room.Event values over the wire.
package clientapi

import (
	"encoding/json"
	"fmt"

	"medea/internal/id"
	"medea/internal/room"
)

// commandEnvelope is the wire shape of every inbound message: a command
// name selecting the variant, plus its raw payload. Mirrors the
// externally-tagged enum encoding idiomatic to the original's command
// set without needing a custom json.Unmarshaler per command.
type commandEnvelope struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

type eventEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// identifyMessage is the handshake every connection must send first —
// before a Command is accepted — naming which Member it authenticates as.
type identifyMessage struct {
	MemberID    id.MemberID `json:"member_id"`
	Credentials string      `json:"credentials"`
}

func decodeCommand(raw []byte) (any, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("clientapi: decoding envelope: %w", err)
	}

	switch env.Command {
	case "MakeSdpOffer":
		var cmd room.MakeSdpOffer
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case "MakeSdpAnswer":
		var cmd room.MakeSdpAnswer
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case "SetIceCandidate":
		var cmd room.SetIceCandidate
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case "UpdateTracks":
		var cmd room.UpdateTracks
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case "AddPeerConnectionMetrics":
		var cmd room.AddPeerConnectionMetrics
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("clientapi: unknown command %q", env.Command)
	}
}

// dispatch runs the decoded command against rm and returns an error, if
// any, to log — Client API commands have no direct response event, so
// failures are only logged by the read pump, never echoed back as an
// event, and the connection stays open.
func dispatch(rm *room.Room, cmd any) error {
	switch c := cmd.(type) {
	case room.MakeSdpOffer:
		return rm.MakeSdpOffer(c)
	case room.MakeSdpAnswer:
		return rm.MakeSdpAnswer(c)
	case room.SetIceCandidate:
		return rm.SetIceCandidate(c)
	case room.UpdateTracks:
		return rm.UpdateTracks(c)
	case room.AddPeerConnectionMetrics:
		return rm.AddPeerConnectionMetrics(c)
	default:
		return fmt.Errorf("clientapi: unhandled command type %T", cmd)
	}
}

func eventName(event any) string {
	switch event.(type) {
	case room.PeerCreated:
		return "PeerCreated"
	case room.SdpAnswerMade:
		return "SdpAnswerMade"
	case room.IceCandidateDiscovered:
		return "IceCandidateDiscovered"
	case room.PeersRemoved:
		return "PeersRemoved"
	case room.TracksApplied:
		return "TracksApplied"
	default:
		return "Unknown"
	}
}
