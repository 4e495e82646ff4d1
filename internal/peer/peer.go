// Package peer implements the per-Peer SDP negotiation state machine: the
// Stable/WaitLocalSdp/WaitRemoteSdp transitions, the deferred track-change
// scheduler, and the repository that owns every Peer in a Room.
package peer

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"medea/internal/id"
	"medea/internal/media"
)

// State is the Peer's negotiation state tag. A Go struct with a
// discriminated tag stands in for the source's distinct Peer<Stable> /
// Peer<WaitLocalSdp> / Peer<WaitRemoteSdp> types: API calls that require a
// specific state return ErrWrongState instead of failing to type-check.
type State int

const (
	StateStable State = iota
	StateWaitLocalSdp
	StateWaitRemoteSdp
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateWaitLocalSdp:
		return "wait_local_sdp"
	case StateWaitRemoteSdp:
		return "wait_remote_sdp"
	default:
		return "unknown"
	}
}

// Peer is one signalling-side representation of an RTCPeerConnection.
// Peers always exist in partnered pairs within a Room.
type Peer struct {
	Context

	state      State
	scheduler  PeerChangesScheduler
	subscriber UpdatesSubscriber
}

// New constructs a Peer in Stable state, owned by memberID, partnered with
// partnerPeerID (owned by partnerMemberID).
func New(peerID id.PeerID, memberID id.MemberID, partnerPeerID id.PeerID, partnerMemberID id.MemberID, subscriber UpdatesSubscriber) *Peer {
	return &Peer{
		Context:    newContext(peerID, memberID, partnerPeerID, partnerMemberID),
		state:      StateStable,
		subscriber: subscriber,
	}
}

func (p *Peer) State() State { return p.state }

func (p *Peer) requireState(want State, op string) error {
	if p.state != want {
		return fmt.Errorf("peer %s: %s requires state %s, have %s: %w", p.ID, op, want, p.state, ErrWrongState)
	}
	return nil
}

// StartAsOfferer transitions Stable -> WaitLocalSdp, clearing any prior
// SDP artifacts.
func (p *Peer) StartAsOfferer() error {
	if err := p.requireState(StateStable, "start_as_offerer"); err != nil {
		return err
	}
	p.SDPOffer, p.SDPAnswer = nil, nil
	p.state = StateWaitLocalSdp
	return nil
}

// StartAsAnswerer transitions Stable -> WaitRemoteSdp, clearing any prior
// SDP artifacts.
func (p *Peer) StartAsAnswerer() error {
	if err := p.requireState(StateStable, "start_as_answerer"); err != nil {
		return err
	}
	p.SDPOffer, p.SDPAnswer = nil, nil
	p.state = StateWaitRemoteSdp
	return nil
}

// SetLocalOffer stores a freshly produced local offer and attaches client-
// supplied mids, transitioning WaitLocalSdp -> WaitRemoteSdp. Every sender
// track must receive a mid.
func (p *Peer) SetLocalOffer(sdp string, mids map[id.TrackID]string) error {
	if err := p.requireState(StateWaitLocalSdp, "set_local_offer"); err != nil {
		return err
	}
	if err := validateSDP(webrtc.SDPTypeOffer, sdp); err != nil {
		return err
	}
	if err := p.attachMids(mids); err != nil {
		return err
	}
	p.SDPOffer = &sdp
	p.state = StateWaitRemoteSdp
	return nil
}

// SetLocalAnswer stores a local answer and finishes negotiation,
// transitioning WaitLocalSdp -> Stable.
func (p *Peer) SetLocalAnswer(sdp string) error {
	if err := p.requireState(StateWaitLocalSdp, "set_local_answer"); err != nil {
		return err
	}
	if err := validateSDP(webrtc.SDPTypeAnswer, sdp); err != nil {
		return err
	}
	p.SDPAnswer = &sdp
	p.state = StateStable
	p.negotiationFinished()
	return nil
}

// SetRemoteAnswer stores the partner's answer and finishes negotiation,
// transitioning WaitRemoteSdp -> Stable.
func (p *Peer) SetRemoteAnswer(sdp string) error {
	if err := p.requireState(StateWaitRemoteSdp, "set_remote_answer"); err != nil {
		return err
	}
	if err := validateSDP(webrtc.SDPTypeAnswer, sdp); err != nil {
		return err
	}
	p.SDPAnswer = &sdp
	p.state = StateStable
	p.negotiationFinished()
	return nil
}

// SetRemoteOffer stores the partner's offer, transitioning
// WaitRemoteSdp -> WaitLocalSdp; the client must now produce an answer.
func (p *Peer) SetRemoteOffer(sdp string) error {
	if err := p.requireState(StateWaitRemoteSdp, "set_remote_offer"); err != nil {
		return err
	}
	if err := validateSDP(webrtc.SDPTypeOffer, sdp); err != nil {
		return err
	}
	p.SDPOffer = &sdp
	p.state = StateWaitLocalSdp
	return nil
}

func (p *Peer) attachMids(mids map[id.TrackID]string) error {
	for trackID := range p.Senders {
		mid, ok := mids[trackID]
		if !ok || mid == "" {
			return fmt.Errorf("peer %s: track %s missing mid: %w", p.ID, trackID, ErrMidsMismatch)
		}
	}
	for trackID, mid := range mids {
		if track, ok := p.Senders[trackID]; ok {
			track.Mid = mid
		}
	}
	return nil
}

// GetMids returns the mid of every sender track. Only valid on a Stable
// peer; any sender track missing a mid is an error.
func (p *Peer) GetMids() (map[id.TrackID]string, error) {
	if err := p.requireState(StateStable, "get_mids"); err != nil {
		return nil, err
	}
	mids := make(map[id.TrackID]string, len(p.Senders))
	for trackID, track := range p.Senders {
		if track.Mid == "" {
			return nil, fmt.Errorf("peer %s: track %s missing mid: %w", p.ID, trackID, ErrMidsMismatch)
		}
		mids[trackID] = track.Mid
	}
	return mids, nil
}

// Scheduler exposes the append-only change queue to callers building up a
// set of pending mutations (PeerRepository.connect_endpoints, Room's
// UpdateTracks handler).
func (p *Peer) Scheduler() *PeerChangesScheduler { return &p.scheduler }

// negotiationFinished marks the peer as known to its remote, clears
// pending updates accumulated by the negotiation that just completed, and
// drains anything queued while negotiation was in flight.
func (p *Peer) negotiationFinished() {
	p.IsKnownToRemote = true
	p.PendingTrackUpdates = nil
	p.CommitScheduledChanges()
}

// CommitScheduledChanges is a no-op unless the peer is Stable. On Stable,
// it drains the scheduler, applies every change, appends the results to
// PendingTrackUpdates, dedupes, and (if anything was applied) notifies the
// subscriber that negotiation is needed.
func (p *Peer) CommitScheduledChanges() []TrackChange {
	if p.state != StateStable || p.scheduler.isEmpty() {
		return nil
	}

	applied := p.applyAll(p.scheduler.drainAll())
	if len(applied) == 0 {
		return nil
	}

	p.PendingTrackUpdates = dedupPendingTrackUpdates(append(p.PendingTrackUpdates, applied...))

	if p.subscriber != nil {
		p.subscriber.NegotiationNeeded(p.ID)
	}
	return applied
}

// ForceCommitScheduledChanges applies only the force-applicable entries in
// the queue (track patches), leaving everything else queued for the next
// real negotiation. Forcibly applied patches are merged with any matching
// patches already sitting in PendingTrackUpdates, and the merged result is
// both kept in PendingTrackUpdates and reported to the subscriber via
// ForceUpdate — it is delivered to the client without a new offer/answer
// cycle.
func (p *Peer) ForceCommitScheduledChanges() {
	forcible := p.scheduler.partitionForceApplicable()
	if len(forcible) == 0 {
		return
	}

	applied := p.applyAll(forcible)

	touched := make([]uint64, 0, len(applied))
	for _, c := range applied {
		touched = append(touched, uint64(c.Patch.ID))
	}

	deduper := NewTrackPatchDeduperWithWhitelist(touched)
	keptPending := deduper.DrainMerge(p.PendingTrackUpdates)
	keptApplied := deduper.DrainMerge(applied)
	merged := deduper.IntoInner()

	p.PendingTrackUpdates = append(keptPending, merged...)

	updates := make([]media.TrackUpdate, 0, len(merged)+len(keptApplied))
	for _, c := range merged {
		updates = append(updates, media.TrackUpdate{Kind: media.TrackUpdateUpdated, Patch: c.Patch})
	}

	if len(updates) > 0 && p.subscriber != nil {
		p.subscriber.ForceUpdate(p.ID, updates)
	}
}

func (p *Peer) applyAll(changes []TrackChange) []TrackChange {
	applied := make([]TrackChange, 0, len(changes))
	for _, c := range changes {
		applied = append(applied, p.applyChange(c))
	}
	return applied
}

// applyChange mutates the peer's track maps per the change kind and
// returns the record to be appended to PendingTrackUpdates / ForceUpdate.
func (p *Peer) applyChange(c TrackChange) TrackChange {
	switch c.Kind {
	case ChangeAddSendTrack:
		p.Senders[c.Track.ID] = c.Track
		return c

	case ChangeAddRecvTrack:
		p.Receivers[c.Track.ID] = c.Track
		return c

	case ChangeTrackPatch:
		track, ok := p.Senders[c.Patch.ID]
		if !ok {
			return c
		}
		if c.Patch.EnabledIndividual != nil {
			track.EnabledIndividual = *c.Patch.EnabledIndividual
		}
		if c.Patch.Muted != nil {
			track.Muted = *c.Patch.Muted
		}
		out := c.Patch
		if c.Patch.EnabledIndividual != nil {
			track.EnabledGeneral = track.EnabledIndividual
			general := track.EnabledGeneral
			out.EnabledGeneral = &general
		}
		return TrackChange{Kind: ChangeTrackPatch, Patch: out}

	case ChangePartnerTrackPatch:
		track, ok := p.Receivers[c.Patch.ID]
		if !ok {
			return c
		}
		out := c.Patch
		out.EnabledIndividual = nil
		if c.Patch.EnabledIndividual != nil {
			general := *c.Patch.EnabledIndividual
			track.EnabledGeneral = general
			out.EnabledGeneral = &general
		}
		if c.Patch.Muted != nil {
			track.Muted = *c.Patch.Muted
		}
		return TrackChange{Kind: ChangePartnerTrackPatch, Patch: out}

	case ChangeIceRestart:
		return c

	default:
		return c
	}
}

// DrainPendingAsTrackUpdates converts PendingTrackUpdates into the wire
// TrackUpdate shape for a TracksApplied event, leaving the peer's pending
// state untouched (negotiationFinished clears it when a negotiation
// completes).
func (p *Peer) DrainPendingAsTrackUpdates() []media.TrackUpdate {
	updates := make([]media.TrackUpdate, 0, len(p.PendingTrackUpdates))
	for _, c := range p.PendingTrackUpdates {
		switch c.Kind {
		case ChangeAddSendTrack:
			updates = append(updates, media.TrackUpdate{Kind: media.TrackUpdateAdded, Track: c.Track, Direction: media.DirectionSend})
		case ChangeAddRecvTrack:
			updates = append(updates, media.TrackUpdate{Kind: media.TrackUpdateAdded, Track: c.Track, Direction: media.DirectionRecv})
		case ChangeTrackPatch, ChangePartnerTrackPatch:
			updates = append(updates, media.TrackUpdate{Kind: media.TrackUpdateUpdated, Patch: c.Patch})
		}
	}
	return updates
}
