// Package id defines the identifier types shared across the signalling
// core and the monotonic counters that allocate them.
package id

import "fmt"

type RoomID string

type MemberID string

type EndpointID string

// PeerID identifies a Peer within a Room. Allocated by Counter[PeerID],
// never reused.
type PeerID uint64

func (id PeerID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// TrackID identifies a MediaTrack within a Room. Allocated by
// Counter[TrackID], never reused.
type TrackID uint64

func (id TrackID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// Counter allocates a monotonically increasing sequence of numeric IDs.
// Not safe for concurrent use; callers that share a Counter across
// goroutines must serialize access to it themselves (the Room actor and
// PeerRepository both do, by construction: only the Room's mailbox
// goroutine ever touches them).
type Counter[T ~uint64] struct {
	next T
}

// NextID returns the next unused ID, starting at 0.
func (c *Counter[T]) NextID() T {
	id := c.next
	c.next++
	return id
}
