package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medea/internal/id"
	"medea/internal/member"
	"medea/internal/turn"
)

type stubTurnService struct{}

func (stubTurnService) Create(ctx context.Context, peerID id.PeerID, roomID id.RoomID, policy turn.UnreachablePolicy) (*turn.IceUser, error) {
	return &turn.IceUser{PeerID: peerID}, nil
}

func (stubTurnService) Delete(ctx context.Context, users ...*turn.IceUser) error { return nil }

type fakeConn struct {
	mu     sync.Mutex
	events []any
	closed bool
}

func (c *fakeConn) SendEvent(ctx context.Context, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lastEvents() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.events))
	copy(out, c.events)
	return out
}

const validSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 0\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n"

func connectedPair(t *testing.T) (rm *Room, alice, bob *fakeConn) {
	t.Helper()
	rm = New("room1", stubTurnService{}, time.Second)

	if err := rm.CreateMember(member.New("alice", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember(alice): %v", err)
	}
	if err := rm.CreateMember(member.New("bob", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember(bob): %v", err)
	}

	alice, bob = &fakeConn{}, &fakeConn{}
	ctx := context.Background()
	if err := rm.ConnectionEstablished(ctx, "alice", alice); err != nil {
		t.Fatalf("ConnectionEstablished(alice): %v", err)
	}
	if err := rm.ConnectionEstablished(ctx, "bob", bob); err != nil {
		t.Fatalf("ConnectionEstablished(bob): %v", err)
	}

	if err := rm.CreateEndpoint(ctx, &member.Endpoint{ID: "publish", Owner: "alice", Kind: member.EndpointPublish}); err != nil {
		t.Fatalf("CreateEndpoint(publish): %v", err)
	}
	if err := rm.CreateEndpoint(ctx, &member.Endpoint{ID: "play", Owner: "bob", Kind: member.EndpointPlay, Src: "local://room1/alice/publish"}); err != nil {
		t.Fatalf("CreateEndpoint(play): %v", err)
	}

	return rm, alice, bob
}

func TestAuthorizeChecksCredentials(t *testing.T) {
	rm := New("room1", stubTurnService{}, time.Second)
	if err := rm.CreateMember(member.New("alice", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}

	if _, err := rm.Authorize("alice", "wrong"); !errors.Is(err, member.ErrInvalidCredentials) {
		t.Fatalf("Authorize(wrong) = %v, want ErrInvalidCredentials", err)
	}
	if _, err := rm.Authorize("alice", "secret"); err != nil {
		t.Fatalf("Authorize(correct): %v", err)
	}
}

func TestSnapshotReflectsMembersAndEndpoints(t *testing.T) {
	rm, _, _ := connectedPair(t)

	snapshot, err := rm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snapshot))
	}

	byID := make(map[id.MemberID]member.MemberSnapshot, len(snapshot))
	for _, mem := range snapshot {
		byID[mem.ID] = mem
	}

	alice, ok := byID["alice"]
	if !ok {
		t.Fatal("expected alice in the snapshot")
	}
	if alice.Credentials != "secret" {
		t.Fatalf("alice.Credentials = %q, want secret", alice.Credentials)
	}
	if len(alice.Endpoints) != 1 || alice.Endpoints[0].ID != "publish" {
		t.Fatalf("alice.Endpoints = %+v, want one endpoint named publish", alice.Endpoints)
	}

	bob, ok := byID["bob"]
	if !ok {
		t.Fatal("expected bob in the snapshot")
	}
	if len(bob.Endpoints) != 1 || bob.Endpoints[0].Src != "local://room1/alice/publish" {
		t.Fatalf("bob.Endpoints = %+v, want one play endpoint sourced from alice's publish", bob.Endpoints)
	}
}

func TestConnectingPublishAndPlayEmitsPeerCreated(t *testing.T) {
	_, alice, bob := connectedPair(t)

	aliceEvents := alice.lastEvents()
	bobEvents := bob.lastEvents()

	total := len(aliceEvents) + len(bobEvents)
	if total == 0 {
		t.Fatal("expected at least one event once a publish/play pair connects")
	}

	foundPeerCreated := false
	for _, e := range append(aliceEvents, bobEvents...) {
		if _, ok := e.(PeerCreated); ok {
			foundPeerCreated = true
		}
	}
	if !foundPeerCreated {
		t.Fatalf("expected a PeerCreated event, got alice=%+v bob=%+v", aliceEvents, bobEvents)
	}
}

func TestCreateMemberRejectsDuplicateID(t *testing.T) {
	rm := New("room1", stubTurnService{}, time.Second)
	if err := rm.CreateMember(member.New("alice", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember(alice): %v", err)
	}

	err := rm.CreateMember(member.New("alice", "room1", "other-secret"))
	if !errors.Is(err, member.ErrMemberAlreadyExists) {
		t.Fatalf("CreateMember(duplicate alice) = %v, want ErrMemberAlreadyExists", err)
	}

	if _, authErr := rm.Authorize("alice", "secret"); authErr != nil {
		t.Fatalf("expected original member's credentials to survive the rejected duplicate: %v", authErr)
	}
}

func TestCreateEndpointRejectsDuplicateID(t *testing.T) {
	rm := New("room1", stubTurnService{}, time.Second)
	if err := rm.CreateMember(member.New("alice", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember(alice): %v", err)
	}

	ctx := context.Background()
	if err := rm.CreateEndpoint(ctx, &member.Endpoint{ID: "publish", Owner: "alice", Kind: member.EndpointPublish}); err != nil {
		t.Fatalf("CreateEndpoint(publish): %v", err)
	}

	err := rm.CreateEndpoint(ctx, &member.Endpoint{ID: "publish", Owner: "alice", Kind: member.EndpointPlay, Src: "local://room1/alice/publish"})
	if !errors.Is(err, member.ErrEndpointAlreadyExists) {
		t.Fatalf("CreateEndpoint(duplicate publish) = %v, want ErrEndpointAlreadyExists", err)
	}
}

func TestSetIceCandidateIgnoresEmpty(t *testing.T) {
	rm, _, bob := connectedPair(t)

	before := len(bob.lastEvents())
	if err := rm.SetIceCandidate(SetIceCandidate{PeerID: 0, Candidate: ""}); err != nil {
		t.Fatalf("SetIceCandidate: %v", err)
	}
	if after := len(bob.lastEvents()); after != before {
		t.Fatalf("expected no event for an empty candidate, event count went from %d to %d", before, after)
	}
}

func TestCloseDropsConnectionsAndRejectsFurtherCommands(t *testing.T) {
	rm, alice, bob := connectedPair(t)

	if err := rm.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !alice.closed || !bob.closed {
		t.Fatal("expected both connections closed")
	}

	if err := rm.SetIceCandidate(SetIceCandidate{PeerID: 0, Candidate: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("command after Close = %v, want ErrClosed", err)
	}
}
