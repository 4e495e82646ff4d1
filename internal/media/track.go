// Package media defines the media-track descriptors shared by a Peer pair
// and the patch/update types the negotiation engine dedupes and emits.
package media

import "medea/internal/id"

type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

// PublishPolicy mirrors the publish policy a WebRtcPublishEndpoint spec
// declares per media kind: whether a track of that kind is ever created.
type PublishPolicy int

const (
	PublishPolicyOptional PublishPolicy = iota
	PublishPolicyRequired
	PublishPolicyDisabled
)

// VideoSource distinguishes the two video tracks a publisher may offer.
type VideoSource int

const (
	VideoSourceDevice VideoSource = iota
	VideoSourceDisplay
)

type Direction int

const (
	DirectionSend Direction = iota
	DirectionRecv
)

// MediaTrack is a single audio or video track shared by a Peer pair: one
// side holds it as a sender, the other as a receiver.
type MediaTrack struct {
	ID          id.TrackID
	Kind        Kind
	VideoSource VideoSource // meaningful only when Kind == KindVideo

	Mid string // empty until the owning Peer has produced an offer

	// EnabledIndividual reflects this track's own mute state as last set
	// locally on the side that owns it; EnabledGeneral reflects the
	// state actually observed by the other side (see TrackChange
	// semantics in the peer package's Peer.applyChange).
	EnabledIndividual bool
	EnabledGeneral    bool
	Muted             bool
}

func NewMediaTrack(trackID id.TrackID, kind Kind, source VideoSource) *MediaTrack {
	return &MediaTrack{
		ID:                trackID,
		Kind:              kind,
		VideoSource:       source,
		EnabledIndividual: true,
		EnabledGeneral:    true,
	}
}

// TrackPatchCommand is the wire shape of a client's UpdateTracks entry:
// optional fields are nil when absent.
type TrackPatchCommand struct {
	ID      id.TrackID
	Enabled *bool
	Muted   *bool
}

// TrackPatchEvent is the internal, mergeable representation of a patch.
// Fields are pointers so that "absent" is distinguishable from "false".
type TrackPatchEvent struct {
	ID                id.TrackID
	EnabledIndividual *bool
	EnabledGeneral    *bool
	Muted             *bool
}

// Merge folds other into e, field by field; a non-nil field in other
// overwrites the corresponding field in e. Panics if the TrackIds differ.
func (e TrackPatchEvent) Merge(other TrackPatchEvent) TrackPatchEvent {
	if e.ID != other.ID {
		panic("media: merging TrackPatchEvent for different track ids")
	}
	merged := e
	if other.EnabledIndividual != nil {
		merged.EnabledIndividual = other.EnabledIndividual
	}
	if other.EnabledGeneral != nil {
		merged.EnabledGeneral = other.EnabledGeneral
	}
	if other.Muted != nil {
		merged.Muted = other.Muted
	}
	return merged
}

// TrackUpdateKind distinguishes the two TrackUpdate wire shapes emitted to
// clients in a TracksApplied event.
type TrackUpdateKind int

const (
	TrackUpdateAdded TrackUpdateKind = iota
	TrackUpdateUpdated
)

// TrackUpdate is the wire representation of one change folded into a
// TracksApplied event.
type TrackUpdate struct {
	Kind      TrackUpdateKind
	Track     *MediaTrack // set when Kind == TrackUpdateAdded
	Direction Direction   // set when Kind == TrackUpdateAdded
	Patch     TrackPatchEvent
}
