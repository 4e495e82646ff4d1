package room

import (
	"context"
	"log/slog"
	"time"

	"medea/internal/id"
	"medea/internal/media"
	"medea/internal/member"
	"medea/internal/peer"
	"medea/internal/turn"
)

// job is one unit of work submitted to the Room's mailbox. Generalized
// from a handful of distinct typed channels (the shape a small actor with
// few operations uses) into a single closure queue, because a Room's
// operation surface — five Client API commands, four Control API
// mutations, three connection-lifecycle transitions — is large enough that
// one channel per operation would mostly duplicate plumbing. The
// single-goroutine, one-message-at-a-time guarantee is identical either
// way.
type job struct {
	run func(r *Room)
}

// Room is the single-threaded serial owner of one Room's Peers and
// Members. Every exported method enqueues a job onto the mailbox and
// blocks for its result; the actual mutation always runs on the Room's own
// goroutine, so PeerRepository and MembersManager never need locks.
type Room struct {
	id     id.RoomID
	peers  *peer.Repository
	members *member.Manager
	turn   turn.Service

	mailbox chan job
	closed  chan struct{}

	log *slog.Logger
}

func New(roomID id.RoomID, turnService turn.Service, reconnectTimeout time.Duration) *Room {
	r := &Room{
		id:      roomID,
		peers:   peer.NewRepository(roomID, turnService),
		turn:    turnService,
		mailbox: make(chan job, 64),
		closed:  make(chan struct{}),
		log:     slog.With("room_id", roomID),
	}
	r.members = member.NewManager(roomID, reconnectTimeout, r.onReconnectTimeout)
	go r.run()
	return r
}

func (r *Room) ID() id.RoomID { return r.id }

func (r *Room) run() {
	for j := range r.mailbox {
		j.run(r)
	}
}

// submit runs fn on the actor goroutine and waits for its result. Safe to
// call concurrently from many goroutines (RPC readers, Control API
// handlers); calls queue and execute strictly in arrival order.
func (r *Room) submit(fn func(r *Room) error) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}

	resultCh := make(chan error, 1)
	select {
	case r.mailbox <- job{run: func(rm *Room) { resultCh <- fn(rm) }}:
	case <-r.closed:
		return ErrClosed
	}
	return <-resultCh
}

// onReconnectTimeout is invoked on the timer's own goroutine (per
// time.AfterFunc); it must not touch Room state directly, only re-enter
// the mailbox as a Closed transition.
func (r *Room) onReconnectTimeout(memberID id.MemberID) {
	_ = r.submit(func(rm *Room) error {
		return rm.handleConnectionClosed(memberID, member.ClosedReasonClosed)
	})
}

// Snapshot copies the current declarative state of every member and
// endpoint in the room, for the Control API's Get operation.
func (r *Room) Snapshot() ([]member.MemberSnapshot, error) {
	var out []member.MemberSnapshot
	err := r.submit(func(rm *Room) error {
		out = rm.members.Snapshot()
		return nil
	})
	return out, err
}

// --- Connection lifecycle -------------------------------------------------

func (r *Room) Authorize(memberID id.MemberID, credentials string) (*member.Member, error) {
	var mem *member.Member
	err := r.submit(func(rm *Room) error {
		m, err := rm.members.Authorize(memberID, credentials)
		mem = m
		return err
	})
	return mem, err
}

func (r *Room) ConnectionEstablished(ctx context.Context, memberID id.MemberID, conn member.RpcConnection) error {
	return r.submit(func(rm *Room) error {
		_, _, err := rm.members.ConnectionEstablished(ctx, memberID, conn)
		if err != nil {
			return wrap(rm.id, "connection_established", err)
		}
		rm.scanConnectableEndpoints(ctx, memberID)
		return nil
	})
}

func (r *Room) ConnectionClosed(memberID id.MemberID, reason member.ClosedReason) error {
	return r.submit(func(rm *Room) error {
		return rm.handleConnectionClosed(memberID, reason)
	})
}

func (r *Room) handleConnectionClosed(memberID id.MemberID, reason member.ClosedReason) error {
	r.members.ConnectionClosed(memberID, reason)
	if reason == member.ClosedReasonClosed {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := r.peers.RemovePeersRelatedToMember(ctx, memberID); err != nil {
			r.log.Error("releasing peers on connection close", "member_id", memberID, "error", err)
		}
	}
	return nil
}

// --- Client API commands ---------------------------------------------------

func (r *Room) MakeSdpOffer(cmd MakeSdpOffer) error {
	return r.submit(func(rm *Room) error { return rm.handleMakeSdpOffer(cmd) })
}

func (r *Room) handleMakeSdpOffer(cmd MakeSdpOffer) error {
	offerer, err := r.peers.GetByID(cmd.PeerID)
	if err != nil {
		return wrap(r.id, "make_sdp_offer", err)
	}
	if err := offerer.SetLocalOffer(cmd.SDPOffer, cmd.Mids); err != nil {
		return wrap(r.id, "make_sdp_offer", err)
	}

	partner, err := r.peers.GetByID(offerer.PartnerPeerID)
	if err != nil {
		return wrap(r.id, "make_sdp_offer", err)
	}
	if err := partner.SetRemoteOffer(cmd.SDPOffer); err != nil {
		return wrap(r.id, "make_sdp_offer", err)
	}

	if !partner.IsKnownToRemote {
		r.emitPeerCreated(partner, &cmd.SDPOffer)
		return nil
	}

	role := NegotiationRoleAnswerer
	r.emit(partner.MemberID, TracksApplied{
		PeerID:          partner.ID,
		Updates:         partner.DrainPendingAsTrackUpdates(),
		NegotiationRole: &role,
		SDPOffer:        &cmd.SDPOffer,
	})
	return nil
}

func (r *Room) MakeSdpAnswer(cmd MakeSdpAnswer) error {
	return r.submit(func(rm *Room) error { return rm.handleMakeSdpAnswer(cmd) })
}

func (r *Room) handleMakeSdpAnswer(cmd MakeSdpAnswer) error {
	answerer, err := r.peers.GetByID(cmd.PeerID)
	if err != nil {
		return wrap(r.id, "make_sdp_answer", err)
	}
	if err := answerer.SetLocalAnswer(cmd.SDPAnswer); err != nil {
		return wrap(r.id, "make_sdp_answer", err)
	}

	offerer, err := r.peers.GetByID(answerer.PartnerPeerID)
	if err != nil {
		return wrap(r.id, "make_sdp_answer", err)
	}
	if err := offerer.SetRemoteAnswer(cmd.SDPAnswer); err != nil {
		return wrap(r.id, "make_sdp_answer", err)
	}

	r.emit(offerer.MemberID, SdpAnswerMade{PeerID: offerer.ID, SDPAnswer: cmd.SDPAnswer})
	return nil
}

func (r *Room) SetIceCandidate(cmd SetIceCandidate) error {
	return r.submit(func(rm *Room) error { return rm.handleSetIceCandidate(cmd) })
}

func (r *Room) handleSetIceCandidate(cmd SetIceCandidate) error {
	if cmd.Candidate == "" {
		r.log.Warn("ignoring empty ice candidate", "peer_id", cmd.PeerID)
		return nil
	}
	p, err := r.peers.GetByID(cmd.PeerID)
	if err != nil {
		return wrap(r.id, "set_ice_candidate", err)
	}
	partner, err := r.peers.GetByID(p.PartnerPeerID)
	if err != nil {
		return wrap(r.id, "set_ice_candidate", err)
	}
	r.emit(partner.MemberID, IceCandidateDiscovered{PeerID: partner.ID, Candidate: cmd.Candidate})
	return nil
}

func (r *Room) UpdateTracks(cmd UpdateTracks) error {
	return r.submit(func(rm *Room) error { return rm.handleUpdateTracks(cmd) })
}

func (r *Room) handleUpdateTracks(cmd UpdateTracks) error {
	p, err := r.peers.GetByID(cmd.PeerID)
	if err != nil {
		return wrap(r.id, "update_tracks", err)
	}
	partner, err := r.peers.GetByID(p.PartnerPeerID)
	if err != nil {
		return wrap(r.id, "update_tracks", err)
	}

	for _, patch := range cmd.Patches {
		event := media.TrackPatchEvent{ID: patch.ID, EnabledIndividual: patch.Enabled, Muted: patch.Muted}
		p.Scheduler().TrackPatch(event)
		partner.Scheduler().PartnerTrackPatch(event)
	}

	p.ForceCommitScheduledChanges()
	partner.ForceCommitScheduledChanges()
	return nil
}

func (r *Room) AddPeerConnectionMetrics(cmd AddPeerConnectionMetrics) error {
	return r.submit(func(rm *Room) error {
		rm.log.Debug("peer connection metrics", "peer_id", cmd.PeerID, "metrics", cmd.Metrics)
		return nil
	})
}

// --- peer.UpdatesSubscriber ------------------------------------------------
//
// These run synchronously on the actor goroutine, invoked from inside
// Peer.CommitScheduledChanges/ForceCommitScheduledChanges, which are
// themselves only ever called from a job already running on this
// goroutine — so it is safe for them to mutate Room state directly.

func (r *Room) NegotiationNeeded(peerID id.PeerID) {
	p, err := r.peers.GetByID(peerID)
	if err != nil || p.State() != peer.StateStable {
		return
	}
	partner, err := r.peers.GetByID(p.PartnerPeerID)
	if err != nil || partner.State() != peer.StateStable {
		return
	}

	offerer, answerer := p, partner
	if partner.ID < p.ID {
		offerer, answerer = partner, p
	}

	if err := offerer.StartAsOfferer(); err != nil {
		r.log.Error("starting offerer", "peer_id", offerer.ID, "error", err)
		return
	}
	if err := answerer.StartAsAnswerer(); err != nil {
		r.log.Error("starting answerer", "peer_id", answerer.ID, "error", err)
		return
	}

	if !offerer.IsKnownToRemote {
		r.emitPeerCreated(offerer, nil)
		return
	}

	role := NegotiationRoleOfferer
	r.emit(offerer.MemberID, TracksApplied{
		PeerID:          offerer.ID,
		Updates:         offerer.DrainPendingAsTrackUpdates(),
		NegotiationRole: &role,
	})
}

func (r *Room) ForceUpdate(peerID id.PeerID, updates []media.TrackUpdate) {
	p, err := r.peers.GetByID(peerID)
	if err != nil || len(updates) == 0 {
		return
	}
	r.emit(p.MemberID, TracksApplied{PeerID: p.ID, Updates: updates})
}

// --- helpers ---------------------------------------------------------------

func (r *Room) emitPeerCreated(p *peer.Peer, sdpOffer *string) {
	var iceServers []turn.ICEServerInfo
	if hmacTurn, ok := r.turn.(interface {
		BuildICEServers(*turn.IceUser) []turn.ICEServerInfo
	}); ok && p.IceUser != nil {
		iceServers = hmacTurn.BuildICEServers(p.IceUser)
	}

	r.emit(p.MemberID, PeerCreated{
		PeerID:     p.ID,
		SDPOffer:   sdpOffer,
		Tracks:     p.DrainPendingAsTrackUpdates(),
		IceServers: iceServers,
		ForceRelay: p.ForceRelayed,
	})
}

func (r *Room) emit(memberID id.MemberID, event any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.members.SendEventToMember(ctx, memberID, event); err != nil {
		r.log.Warn("sending event to member", "member_id", memberID, "error", err)
	}
}

// Close drops every connection and is final; the Room must not be used
// afterward.
func (r *Room) Close(ctx context.Context) error {
	err := r.submit(func(rm *Room) error {
		for memberID := range rm.allMemberIDs() {
			if _, derr := rm.peers.RemovePeersRelatedToMember(ctx, memberID); derr != nil {
				rm.log.Error("removing peers on close", "member_id", memberID, "error", derr)
			}
		}
		return rm.members.DropConnections(ctx)
	})
	close(r.closed)
	close(r.mailbox)
	return err
}

func (r *Room) allMemberIDs() map[id.MemberID]struct{} {
	out := make(map[id.MemberID]struct{})
	for _, m := range r.members.All() {
		out[m.ID] = struct{}{}
	}
	return out
}
