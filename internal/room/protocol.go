// Package room implements the Room actor: the single-threaded owner of a
// PeerRepository and a MembersManager, and the handler for both the
// Client API command set and the Control API's topology mutations.
package room

import (
	"medea/internal/id"
	"medea/internal/media"
	"medea/internal/turn"
)

// Client API commands (§6), as delivered by the transport after decoding
// from the wire.

type MakeSdpOffer struct {
	PeerID   id.PeerID
	SDPOffer string
	Mids     map[id.TrackID]string
}

type MakeSdpAnswer struct {
	PeerID    id.PeerID
	SDPAnswer string
}

type SetIceCandidate struct {
	PeerID    id.PeerID
	Candidate string
}

type UpdateTracks struct {
	PeerID  id.PeerID
	Patches []media.TrackPatchCommand
}

type AddPeerConnectionMetrics struct {
	PeerID  id.PeerID
	Metrics map[string]string
}

// Client API events (§6), emitted to a single member's RpcConnection.

type NegotiationRole string

const (
	NegotiationRoleOfferer  NegotiationRole = "offerer"
	NegotiationRoleAnswerer NegotiationRole = "answerer"
)

type PeerCreated struct {
	PeerID     id.PeerID         `json:"peer_id"`
	SDPOffer   *string           `json:"sdp_offer,omitempty"`
	Tracks     []media.TrackUpdate `json:"tracks"`
	IceServers []turn.ICEServerInfo `json:"ice_servers"`
	ForceRelay bool              `json:"force_relay"`
}

type SdpAnswerMade struct {
	PeerID    id.PeerID `json:"peer_id"`
	SDPAnswer string    `json:"sdp_answer"`
}

type IceCandidateDiscovered struct {
	PeerID    id.PeerID `json:"peer_id"`
	Candidate string    `json:"candidate"`
}

type PeersRemoved struct {
	PeerIDs []id.PeerID `json:"peer_ids"`
}

type TracksApplied struct {
	PeerID          id.PeerID           `json:"peer_id"`
	Updates         []media.TrackUpdate `json:"updates"`
	NegotiationRole *NegotiationRole    `json:"negotiation_role,omitempty"`
	SDPOffer        *string             `json:"sdp_offer,omitempty"`
}
