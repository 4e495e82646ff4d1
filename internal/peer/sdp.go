package peer

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// validateSDP parses sdp the same way pion's RTCPeerConnection would
// before accepting a description, so a malformed offer/answer is
// rejected at the signalling boundary instead of surfacing as an opaque
// failure on whichever client eventually calls setRemoteDescription.
func validateSDP(sdpType webrtc.SDPType, sdp string) error {
	desc := webrtc.SessionDescription{Type: sdpType, SDP: sdp}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("peer: invalid %s sdp: %w", sdpType, err)
	}
	return nil
}
