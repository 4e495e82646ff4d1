package room

import (
	"context"

	"medea/internal/id"
	"medea/internal/localuri"
	"medea/internal/member"
	"medea/internal/peer"
)

// CreateMember adds a member to the room. It does not by itself connect
// any peers — that happens once the member's RpcConnection is
// established, so that scanConnectableEndpoints has something live to
// check both sides against.
func (r *Room) CreateMember(mem *member.Member) error {
	return r.submit(func(rm *Room) error {
		if err := rm.members.Add(mem); err != nil {
			return wrap(rm.id, "create_member", err)
		}
		return nil
	})
}

func (r *Room) DeleteMember(ctx context.Context, memberID id.MemberID) error {
	return r.submit(func(rm *Room) error {
		removedByOwner, err := rm.peers.RemovePeersRelatedToMember(ctx, memberID)
		if err != nil {
			return wrap(rm.id, "delete_member", err)
		}
		for owner, removed := range removedByOwner {
			if owner == memberID {
				continue
			}
			rm.emit(owner, PeersRemoved{PeerIDs: removed})
		}
		rm.members.Remove(memberID)
		return nil
	})
}

// CreateEndpoint registers a Publish or Play endpoint on its owning
// member, then scans for a newly-connectable counterpart.
func (r *Room) CreateEndpoint(ctx context.Context, ep *member.Endpoint) error {
	return r.submit(func(rm *Room) error {
		mem, ok := rm.members.GetByID(ep.Owner)
		if !ok {
			return wrap(rm.id, "create_endpoint", member.ErrMemberNotFound)
		}
		if _, exists := mem.Endpoints[ep.ID]; exists {
			return wrap(rm.id, "create_endpoint", member.ErrEndpointAlreadyExists)
		}
		mem.Endpoints[ep.ID] = ep
		rm.scanConnectableEndpoints(ctx, ep.Owner)
		return nil
	})
}

func (r *Room) DeleteEndpoint(ctx context.Context, memberID id.MemberID, endpointID id.EndpointID) error {
	return r.submit(func(rm *Room) error {
		mem, ok := rm.members.GetByID(memberID)
		if !ok {
			return wrap(rm.id, "delete_endpoint", member.ErrMemberNotFound)
		}
		ep, ok := mem.Endpoints[endpointID]
		if !ok {
			return nil
		}
		peerIDs := rm.peers.PeersForEndpoint(endpointID)
		if len(peerIDs) > 0 {
			removedByOwner, err := rm.peers.RemovePeers(ctx, peerIDs)
			if err != nil {
				return wrap(rm.id, "delete_endpoint", err)
			}
			for owner, removed := range removedByOwner {
				rm.emit(owner, PeersRemoved{PeerIDs: removed})
			}
		}
		delete(mem.Endpoints, ep.ID)
		return nil
	})
}

// scanConnectableEndpoints checks memberID's Play endpoints and those of
// every other member in the room, and connects any pair that has both a
// live publisher and a live subscriber but isn't already bound to peers.
func (r *Room) scanConnectableEndpoints(ctx context.Context, memberID id.MemberID) {
	mem, ok := r.members.GetByID(memberID)
	if !ok {
		return
	}

	candidates := mem.PlayEndpoints()
	for _, other := range r.members.All() {
		if other.ID == memberID {
			continue
		}
		candidates = append(candidates, other.PlayEndpoints()...)
	}

	for _, play := range candidates {
		if len(r.peers.PeersForEndpoint(play.ID)) > 0 {
			continue // already connected
		}

		src, err := localuri.Parse(play.Src)
		if err != nil || src.Depth != 3 {
			continue
		}

		publisherMember, ok := r.members.GetByID(src.MemberID)
		if !ok || publisherMember.Connection() == nil {
			continue
		}
		playerMember, ok := r.members.GetByID(play.Owner)
		if !ok || playerMember.Connection() == nil {
			continue
		}
		publishEndpoint, ok := publisherMember.Endpoints[src.EndpointID]
		if !ok || publishEndpoint.Kind != member.EndpointPublish {
			continue
		}

		result, err := r.peers.ConnectEndpoints(ctx, peer.PublishSpec{
			MemberID:    publisherMember.ID,
			EndpointID:  publishEndpoint.ID,
			AudioPolicy: publishEndpoint.AudioPolicy,
			VideoPolicy: publishEndpoint.VideoPolicy,
			ForceRelay:  publishEndpoint.ForceRelay,
		}, peer.PlaySpec{
			MemberID:   playerMember.ID,
			EndpointID: play.ID,
		}, r)
		if err != nil {
			r.log.Error("connecting endpoints", "publish", src.MemberID, "play", play.Owner, "error", err)
			continue
		}

		publisherPeer, _ := r.peers.GetByID(result.PublisherPeerID)
		playerPeer, _ := r.peers.GetByID(result.PlayerPeerID)
		publisherPeer.CommitScheduledChanges()
		playerPeer.CommitScheduledChanges()
	}
}
