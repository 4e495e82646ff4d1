package id

import "testing"

func TestCounterNextIDIsMonotonicStartingAtZero(t *testing.T) {
	var c Counter[PeerID]

	first := c.NextID()
	second := c.NextID()
	third := c.NextID()

	if first != 0 || second != 1 || third != 2 {
		t.Fatalf("got %d, %d, %d; want 0, 1, 2", first, second, third)
	}
}

func TestCounterInstancesAreIndependent(t *testing.T) {
	var a, b Counter[TrackID]

	a.NextID()
	a.NextID()

	if got := b.NextID(); got != 0 {
		t.Fatalf("fresh counter returned %d, want 0", got)
	}
}
