package controlapi

import (
	"medea/internal/id"
	"medea/internal/media"
)

// RoomSpec, MemberSpec and the two WebRtc*EndpointSpec types are the
// declarative wire/YAML shape of Create and Apply requests (§5). They are
// intentionally flat DTOs validated with struct tags and only later
// converted into the live room/member/peer domain objects — the same
// split the original Rust spec types (RoomSpec/MemberSpec/EndpointSpec)
// draw between a serde-deserialized tree and the runtime Element graph.
type RoomSpec struct {
	ID      id.RoomID            `yaml:"id" json:"id" validate:"required"`
	Pipeline map[string]MemberSpec `yaml:"pipeline" json:"pipeline"`
}

type MemberSpec struct {
	Credentials string                            `yaml:"credentials" json:"credentials" validate:"required"`
	Pipeline    map[string]WebRtcEndpointSpec      `yaml:"pipeline" json:"pipeline"`
}

// WebRtcEndpointSpec unifies the Publish and Play spec shapes behind a
// Kind discriminator, matching how the YAML pipeline entries are tagged
// in practice (a "kind" field selects the variant).
type WebRtcEndpointSpec struct {
	Kind WebRtcEndpointKind `yaml:"kind" json:"kind" validate:"required,oneof=WebRtcPublishEndpoint WebRtcPlayEndpoint"`

	// WebRtcPublishEndpoint fields.
	AudioSettings *PublishPolicySpec `yaml:"audio_settings,omitempty" json:"audio_settings,omitempty"`
	VideoSettings *PublishPolicySpec `yaml:"video_settings,omitempty" json:"video_settings,omitempty"`
	P2P           string             `yaml:"p2p,omitempty" json:"p2p,omitempty"`
	ForceRelay    bool               `yaml:"force_relay,omitempty" json:"force_relay,omitempty"`

	// WebRtcPlayEndpoint fields.
	Src string `yaml:"src,omitempty" json:"src,omitempty" validate:"required_if=Kind WebRtcPlayEndpoint"`
}

type WebRtcEndpointKind string

const (
	EndpointKindPublish WebRtcEndpointKind = "WebRtcPublishEndpoint"
	EndpointKindPlay    WebRtcEndpointKind = "WebRtcPlayEndpoint"
)

// PublishPolicySpec carries the wire spelling ("Optional", "Required",
// "Disabled") rather than media.PublishPolicy's int, so YAML/JSON specs
// stay human-readable; parsePublishPolicy converts it at build time.
type PublishPolicySpec struct {
	PublishPolicy string `yaml:"publish_policy" json:"publish_policy" validate:"omitempty,oneof=Optional Required Disabled"`
}

func parsePublishPolicy(s string) media.PublishPolicy {
	switch s {
	case "Required":
		return media.PublishPolicyRequired
	case "Disabled":
		return media.PublishPolicyDisabled
	default:
		return media.PublishPolicyOptional
	}
}

// publishPolicySpec is parsePublishPolicy's inverse, used to serialize
// live endpoint state back into the wire spec shape for Get.
func publishPolicySpec(p media.PublishPolicy) string {
	switch p {
	case media.PublishPolicyRequired:
		return "Required"
	case media.PublishPolicyDisabled:
		return "Disabled"
	default:
		return "Optional"
	}
}
