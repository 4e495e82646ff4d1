package peer

import (
	"medea/internal/id"
	"medea/internal/media"
)

// UpdatesSubscriber receives the two notifications a Peer's negotiation
// engine produces. The Room actor implements this and re-delivers both as
// messages to itself, keeping the Peer free of any actor-framework
// dependency.
type UpdatesSubscriber interface {
	NegotiationNeeded(peerID id.PeerID)
	ForceUpdate(peerID id.PeerID, updates []media.TrackUpdate)
}
