package peer

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"medea/internal/id"
	"medea/internal/media"
	"medea/internal/turn"
)

// PublishSpec is the slice of a WebRtcPublishEndpoint a Peer pair needs to
// build sender tracks from.
type PublishSpec struct {
	MemberID    id.MemberID
	EndpointID  id.EndpointID
	AudioPolicy media.PublishPolicy
	VideoPolicy media.PublishPolicy
	ForceRelay  bool
}

// PlaySpec is the slice of a WebRtcPlayEndpoint a Peer pair needs.
type PlaySpec struct {
	MemberID   id.MemberID
	EndpointID id.EndpointID
}

// PairResult describes the outcome of ConnectEndpoints.
type PairResult struct {
	PublisherPeerID id.PeerID
	PlayerPeerID    id.PeerID
	// Created is false when an existing pair between the two members was
	// augmented rather than a new pair being allocated; callers use this
	// to decide whether a fresh offer/answer cycle is needed versus a
	// renegotiation on already-Stable peers.
	Created bool
}

func pairKey(a, b id.MemberID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + "\x00" + string(b)
}

// Repository owns every Peer in one Room: id/track counters, the
// endpoint-to-peer index, and peer-pair creation including IceUser
// provisioning.
type Repository struct {
	roomID id.RoomID
	turn   turn.Service

	peers map[id.PeerID]*Peer

	peerCounter  id.Counter[id.PeerID]
	trackCounter id.Counter[id.TrackID]

	// pairs maps an unordered member-id pair to the two peer ids
	// connecting them, so a second endpoint between the same members
	// reuses the existing pair instead of allocating a new one.
	pairs map[string][2]id.PeerID

	// endpointPeers indexes which peers a given endpoint caused to be
	// created or bound to, for Delete-endpoint cleanup.
	endpointPeers map[id.EndpointID][]id.PeerID
}

func NewRepository(roomID id.RoomID, turnService turn.Service) *Repository {
	return &Repository{
		roomID:        roomID,
		turn:          turnService,
		peers:         make(map[id.PeerID]*Peer),
		pairs:         make(map[string][2]id.PeerID),
		endpointPeers: make(map[id.EndpointID][]id.PeerID),
	}
}

func (r *Repository) GetByID(peerID id.PeerID) (*Peer, error) {
	p, ok := r.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("peer %s: %w", peerID, ErrNotFound)
	}
	return p, nil
}

// GetByMembersIDs returns the existing peer pair connecting the two
// members, if any.
func (r *Repository) GetByMembersIDs(a, b id.MemberID) (publisher, player id.PeerID, ok bool) {
	pair, found := r.pairs[pairKey(a, b)]
	if !found {
		return 0, 0, false
	}
	first, second := r.peers[pair[0]], r.peers[pair[1]]
	if first == nil || second == nil {
		return 0, 0, false
	}
	if first.MemberID == a {
		return pair[0], pair[1], true
	}
	return pair[1], pair[0], true
}

func buildTracks(counter *id.Counter[id.TrackID], audio, video media.PublishPolicy) []*media.MediaTrack {
	var tracks []*media.MediaTrack
	if audio != media.PublishPolicyDisabled {
		tracks = append(tracks, media.NewMediaTrack(counter.NextID(), media.KindAudio, 0))
	}
	if video != media.PublishPolicyDisabled {
		tracks = append(tracks, media.NewMediaTrack(counter.NextID(), media.KindVideo, media.VideoSourceDevice))
		tracks = append(tracks, media.NewMediaTrack(counter.NextID(), media.KindVideo, media.VideoSourceDisplay))
	}
	return tracks
}

// ConnectEndpoints implements §4.2: reuse an existing pair between the two
// members if present (scheduling the new publisher's tracks onto it), else
// allocate a fresh pair and provision IceUsers for both sides concurrently.
// On TURN failure the pair is discarded before ever being inserted into
// the repository.
func (r *Repository) ConnectEndpoints(ctx context.Context, publish PublishSpec, play PlaySpec, subscriber UpdatesSubscriber) (*PairResult, error) {
	if publisherID, playerID, ok := r.GetByMembersIDs(publish.MemberID, play.MemberID); ok {
		publisher, player := r.peers[publisherID], r.peers[playerID]
		for _, track := range buildTracks(&r.trackCounter, publish.AudioPolicy, publish.VideoPolicy) {
			publisher.Scheduler().AddSendTrack(track)
			player.Scheduler().AddRecvTrack(track)
		}
		r.bindEndpoint(publish.EndpointID, publisherID, playerID)
		r.bindEndpoint(play.EndpointID, publisherID, playerID)
		return &PairResult{PublisherPeerID: publisherID, PlayerPeerID: playerID, Created: false}, nil
	}

	publisherID := r.peerCounter.NextID()
	playerID := r.peerCounter.NextID()

	publisher := New(publisherID, publish.MemberID, playerID, play.MemberID, subscriber)
	player := New(playerID, play.MemberID, publisherID, publish.MemberID, subscriber)
	publisher.ForceRelayed = publish.ForceRelay
	player.ForceRelayed = publish.ForceRelay

	for _, track := range buildTracks(&r.trackCounter, publish.AudioPolicy, publish.VideoPolicy) {
		publisher.Scheduler().AddSendTrack(track)
		player.Scheduler().AddRecvTrack(track)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	var publisherIce, playerIce *turn.IceUser
	group.Go(func() error {
		ice, err := r.turn.Create(groupCtx, publisherID, r.roomID, turn.UnreachablePolicyReturnErr)
		if err != nil {
			return err
		}
		publisherIce = ice
		return nil
	})
	group.Go(func() error {
		ice, err := r.turn.Create(groupCtx, playerID, r.roomID, turn.UnreachablePolicyReturnErr)
		if err != nil {
			return err
		}
		playerIce = ice
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("provisioning turn credentials for peer pair %s/%s: %w", publisherID, playerID, err)
	}

	publisher.IceUser = publisherIce
	player.IceUser = playerIce

	r.peers[publisherID] = publisher
	r.peers[playerID] = player
	r.pairs[pairKey(publish.MemberID, play.MemberID)] = [2]id.PeerID{publisherID, playerID}
	r.bindEndpoint(publish.EndpointID, publisherID, playerID)
	r.bindEndpoint(play.EndpointID, publisherID, playerID)

	return &PairResult{PublisherPeerID: publisherID, PlayerPeerID: playerID, Created: true}, nil
}

func (r *Repository) bindEndpoint(endpointID id.EndpointID, peerIDs ...id.PeerID) {
	r.endpointPeers[endpointID] = append(r.endpointPeers[endpointID], peerIDs...)
}

// PeersForEndpoint returns the peers an endpoint is currently bound to.
func (r *Repository) PeersForEndpoint(endpointID id.EndpointID) []id.PeerID {
	return r.endpointPeers[endpointID]
}

// RemovePeers removes the listed peers and their partners, releasing their
// IceUsers, and returns the removed peer ids grouped by owning member so
// the Room can emit one PeersRemoved event per affected member.
func (r *Repository) RemovePeers(ctx context.Context, peerIDs []id.PeerID) (map[id.MemberID][]id.PeerID, error) {
	toRemove := make(map[id.PeerID]struct{})
	for _, peerID := range peerIDs {
		toRemove[peerID] = struct{}{}
		if p, ok := r.peers[peerID]; ok {
			toRemove[p.PartnerPeerID] = struct{}{}
		}
	}

	removed := make(map[id.MemberID][]id.PeerID)
	var iceUsers []*turn.IceUser

	for peerID := range toRemove {
		p, ok := r.peers[peerID]
		if !ok {
			continue
		}
		delete(r.peers, peerID)
		delete(r.pairs, pairKey(p.MemberID, p.PartnerMemberID))
		if p.IceUser != nil {
			iceUsers = append(iceUsers, p.IceUser)
		}
		removed[p.MemberID] = append(removed[p.MemberID], peerID)
	}

	for endpointID, bound := range r.endpointPeers {
		r.endpointPeers[endpointID] = filterOut(bound, toRemove)
	}

	if len(iceUsers) > 0 {
		if err := r.turn.Delete(ctx, iceUsers...); err != nil {
			return removed, fmt.Errorf("releasing turn credentials: %w", err)
		}
	}

	return removed, nil
}

// RemovePeersRelatedToMember collects every peer owned by memberID and
// removes them (and their partners).
func (r *Repository) RemovePeersRelatedToMember(ctx context.Context, memberID id.MemberID) (map[id.MemberID][]id.PeerID, error) {
	var owned []id.PeerID
	for peerID, p := range r.peers {
		if p.MemberID == memberID {
			owned = append(owned, peerID)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i] < owned[j] })
	return r.RemovePeers(ctx, owned)
}

func filterOut(ids []id.PeerID, remove map[id.PeerID]struct{}) []id.PeerID {
	if len(remove) == 0 {
		return ids
	}
	out := ids[:0]
	for _, candidate := range ids {
		if _, drop := remove[candidate]; !drop {
			out = append(out, candidate)
		}
	}
	return out
}
