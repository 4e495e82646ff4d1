// Package member implements Member session lifecycle: credentials,
// endpoints, RpcConnection registration, and reconnect-grace handling.
package member

import (
	"medea/internal/id"
	"medea/internal/media"
)

type EndpointKind int

const (
	EndpointPublish EndpointKind = iota
	EndpointPlay
)

// Endpoint is a declarative publish or play unit owned by a Member.
type Endpoint struct {
	ID      id.EndpointID
	Owner   id.MemberID
	Kind    EndpointKind
	Peers   []id.PeerID // bound peer ids, populated once connectable

	// Publish-specific.
	AudioPolicy media.PublishPolicy
	VideoPolicy media.PublishPolicy
	ForceRelay  bool

	// Play-specific: local URI of the Publish endpoint this plays from,
	// e.g. "local://room1/alice/publish".
	Src string
}

// Member is a participant in a Room.
type Member struct {
	ID          id.MemberID
	RoomID      id.RoomID
	credentials string
	Endpoints   map[id.EndpointID]*Endpoint

	conn RpcConnection
}

func New(memberID id.MemberID, roomID id.RoomID, credentials string) *Member {
	return &Member{
		ID:          memberID,
		RoomID:      roomID,
		credentials: credentials,
		Endpoints:   make(map[id.EndpointID]*Endpoint),
	}
}

func (m *Member) Credentials() string { return m.credentials }

func (m *Member) Connection() RpcConnection { return m.conn }

func (m *Member) SetConnection(conn RpcConnection) { m.conn = conn }

// TakeConnection clears and returns the current connection, or nil.
func (m *Member) TakeConnection() RpcConnection {
	conn := m.conn
	m.conn = nil
	return conn
}

func (m *Member) PublishEndpoints() []*Endpoint {
	var out []*Endpoint
	for _, e := range m.Endpoints {
		if e.Kind == EndpointPublish {
			out = append(out, e)
		}
	}
	return out
}

func (m *Member) PlayEndpoints() []*Endpoint {
	var out []*Endpoint
	for _, e := range m.Endpoints {
		if e.Kind == EndpointPlay {
			out = append(out, e)
		}
	}
	return out
}

// EndpointSnapshot is a value-type copy of an Endpoint's declarative
// fields, safe to hand outside the Room actor that owns the live pointer.
type EndpointSnapshot struct {
	ID          id.EndpointID
	Owner       id.MemberID
	Kind        EndpointKind
	AudioPolicy media.PublishPolicy
	VideoPolicy media.PublishPolicy
	ForceRelay  bool
	Src         string
}

// MemberSnapshot is a value-type copy of a Member's declarative state —
// credentials and endpoint specs — for Control API Get responses.
type MemberSnapshot struct {
	ID          id.MemberID
	Credentials string
	Endpoints   []EndpointSnapshot
}

// Snapshot copies the member's current declarative state. Must only be
// called from the Room actor goroutine that owns m.
func (m *Member) Snapshot() MemberSnapshot {
	eps := make([]EndpointSnapshot, 0, len(m.Endpoints))
	for _, e := range m.Endpoints {
		eps = append(eps, EndpointSnapshot{
			ID:          e.ID,
			Owner:       e.Owner,
			Kind:        e.Kind,
			AudioPolicy: e.AudioPolicy,
			VideoPolicy: e.VideoPolicy,
			ForceRelay:  e.ForceRelay,
			Src:         e.Src,
		})
	}
	return MemberSnapshot{ID: m.ID, Credentials: m.credentials, Endpoints: eps}
}
