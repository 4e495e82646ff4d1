// Package localuri parses and formats the hierarchical element URIs the
// Control API and Play endpoint `src` references use:
// local://room[/member[/endpoint]].
package localuri

import (
	"errors"
	"strings"

	"medea/internal/id"
)

var (
	ErrNotLocal        = errors.New("uri: missing local:// scheme")
	ErrEmpty           = errors.New("uri: empty")
	ErrTooManySegments = errors.New("uri: too many segments")
	ErrMissingSegments = errors.New("uri: missing segments")
)

const scheme = "local://"

// URI is a parsed local:// element reference. Depth indicates how many of
// Room/Member/Endpoint were present: 1 (room only), 2 (room/member), or 3
// (room/member/endpoint).
type URI struct {
	RoomID     id.RoomID
	MemberID   id.MemberID
	EndpointID id.EndpointID
	Depth      int
}

func (u URI) String() string {
	switch u.Depth {
	case 1:
		return scheme + string(u.RoomID)
	case 2:
		return scheme + string(u.RoomID) + "/" + string(u.MemberID)
	default:
		return scheme + string(u.RoomID) + "/" + string(u.MemberID) + "/" + string(u.EndpointID)
	}
}

// Parse validates the local:// grammar and splits it into up to three
// segments, mapping the distinct Rust local_uri.rs parse errors onto
// sentinel errors the Control API maps to codes 1200-1203.
func Parse(raw string) (URI, error) {
	if raw == "" {
		return URI{}, ErrEmpty
	}
	if !strings.HasPrefix(raw, scheme) {
		return URI{}, ErrNotLocal
	}

	rest := strings.TrimPrefix(raw, scheme)
	if rest == "" {
		return URI{}, ErrMissingSegments
	}

	segments := strings.Split(rest, "/")
	for _, s := range segments {
		if s == "" {
			return URI{}, ErrMissingSegments
		}
	}

	switch len(segments) {
	case 1:
		return URI{RoomID: id.RoomID(segments[0]), Depth: 1}, nil
	case 2:
		return URI{RoomID: id.RoomID(segments[0]), MemberID: id.MemberID(segments[1]), Depth: 2}, nil
	case 3:
		return URI{
			RoomID:     id.RoomID(segments[0]),
			MemberID:   id.MemberID(segments[1]),
			EndpointID: id.EndpointID(segments[2]),
			Depth:      3,
		}, nil
	default:
		return URI{}, ErrTooManySegments
	}
}
