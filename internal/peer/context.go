package peer

import (
	"medea/internal/id"
	"medea/internal/media"
	"medea/internal/turn"
)

// EndpointRef is a weak back-reference from a Peer to the Endpoint that
// caused it to be created, addressed by index rather than pointer so the
// Peer never needs to know about Member/Endpoint lifetimes.
type EndpointRef struct {
	MemberID   id.MemberID
	EndpointID id.EndpointID
}

// Context is the state every Peer state variant carries regardless of its
// negotiation state.
type Context struct {
	ID              id.PeerID
	MemberID        id.MemberID
	PartnerPeerID   id.PeerID
	PartnerMemberID id.MemberID

	SDPOffer  *string
	SDPAnswer *string

	Senders   map[id.TrackID]*media.MediaTrack
	Receivers map[id.TrackID]*media.MediaTrack

	IceUser      *turn.IceUser
	ForceRelayed bool

	IsKnownToRemote     bool
	PendingTrackUpdates []TrackChange

	Endpoints []EndpointRef
}

func newContext(peerID id.PeerID, memberID id.MemberID, partnerPeerID id.PeerID, partnerMemberID id.MemberID) Context {
	return Context{
		ID:              peerID,
		MemberID:        memberID,
		PartnerPeerID:   partnerPeerID,
		PartnerMemberID: partnerMemberID,
		Senders:         make(map[id.TrackID]*media.MediaTrack),
		Receivers:       make(map[id.TrackID]*media.MediaTrack),
	}
}

func (c *Context) senderTrackIDs() []id.TrackID {
	ids := make([]id.TrackID, 0, len(c.Senders))
	for trackID := range c.Senders {
		ids = append(ids, trackID)
	}
	return ids
}
