package member

import (
	"context"
	"errors"
	"testing"
	"time"

	"medea/internal/id"
)

type fakeConn struct {
	closed  bool
	events  []any
	failure error
}

func (c *fakeConn) SendEvent(ctx context.Context, event any) error {
	if c.failure != nil {
		return c.failure
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestAuthorizeDistinguishesMissingFromWrongCredentials(t *testing.T) {
	mgr := NewManager("room1", time.Second, nil)
	mgr.Add(New("alice", "room1", "secret"))

	if _, err := mgr.Authorize("bob", "secret"); !errors.Is(err, ErrMemberNotExists) {
		t.Fatalf("Authorize(missing member) = %v, want ErrMemberNotExists", err)
	}
	if _, err := mgr.Authorize("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authorize(wrong creds) = %v, want ErrInvalidCredentials", err)
	}
}

func TestAddRejectsDuplicateMemberID(t *testing.T) {
	mgr := NewManager("room1", time.Second, nil)
	if err := mgr.Add(New("alice", "room1", "secret")); err != nil {
		t.Fatalf("Add(alice): %v", err)
	}

	if err := mgr.Add(New("alice", "room1", "different-secret")); !errors.Is(err, ErrMemberAlreadyExists) {
		t.Fatalf("Add(duplicate alice) = %v, want ErrMemberAlreadyExists", err)
	}

	mem, ok := mgr.GetByID("alice")
	if !ok {
		t.Fatal("expected the original member to still be registered")
	}
	if mem.Credentials() != "secret" {
		t.Fatal("duplicate Add must not clobber the original member's credentials")
	}
	mem, err := mgr.Authorize("alice", "secret")
	if err != nil {
		t.Fatalf("Authorize(correct creds): %v", err)
	}
	if mem.ID != "alice" {
		t.Fatalf("Authorize returned wrong member: %+v", mem)
	}
}

func TestConnectionEstablishedClosesStaleConnection(t *testing.T) {
	mgr := NewManager("room1", time.Second, nil)
	mgr.Add(New("alice", "room1", "secret"))

	stale := &fakeConn{}
	if _, _, err := mgr.ConnectionEstablished(context.Background(), "alice", stale); err != nil {
		t.Fatalf("first ConnectionEstablished: %v", err)
	}

	fresh := &fakeConn{}
	mem, wasReconnect, err := mgr.ConnectionEstablished(context.Background(), "alice", fresh)
	if err != nil {
		t.Fatalf("second ConnectionEstablished: %v", err)
	}
	if wasReconnect {
		t.Fatal("expected wasReconnect=false when there was no pending grace task")
	}
	if !stale.closed {
		t.Fatal("expected stale connection to be closed when replaced")
	}
	if mem.Connection() != fresh {
		t.Fatal("expected member's connection to be the fresh one")
	}
}

func TestConnectionClosedLostInstallsGraceThenReconnectCancelsIt(t *testing.T) {
	fired := make(chan id.MemberID, 1)
	mgr := NewManager("room1", 20*time.Millisecond, func(memberID id.MemberID) {
		fired <- memberID
	})
	mgr.Add(New("alice", "room1", "secret"))
	mgr.ConnectionEstablished(context.Background(), "alice", &fakeConn{})

	mgr.ConnectionClosed("alice", ClosedReasonLost)

	mgr.ConnectionEstablished(context.Background(), "alice", &fakeConn{})

	select {
	case memberID := <-fired:
		t.Fatalf("grace timeout fired for %s despite reconnect", memberID)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestConnectionClosedLostFiresAfterTimeoutWithoutReconnect(t *testing.T) {
	fired := make(chan id.MemberID, 1)
	mgr := NewManager("room1", 10*time.Millisecond, func(memberID id.MemberID) {
		fired <- memberID
	})
	mgr.Add(New("alice", "room1", "secret"))
	mgr.ConnectionEstablished(context.Background(), "alice", &fakeConn{})

	mgr.ConnectionClosed("alice", ClosedReasonLost)

	select {
	case memberID := <-fired:
		if memberID != "alice" {
			t.Fatalf("grace timeout fired for wrong member: %s", memberID)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected grace timeout to fire")
	}
}

func TestConnectionClosedClosedRemovesImmediately(t *testing.T) {
	mgr := NewManager("room1", time.Hour, nil)
	mgr.Add(New("alice", "room1", "secret"))
	mgr.ConnectionEstablished(context.Background(), "alice", &fakeConn{})

	mgr.ConnectionClosed("alice", ClosedReasonClosed)

	mem, _ := mgr.GetByID("alice")
	if mem.Connection() != nil {
		t.Fatal("expected connection cleared immediately on ClosedReasonClosed")
	}
}

func TestSendEventToMemberErrorsWithoutConnection(t *testing.T) {
	mgr := NewManager("room1", time.Second, nil)
	mgr.Add(New("alice", "room1", "secret"))

	if err := mgr.SendEventToMember(context.Background(), "alice", "hello"); !errors.Is(err, ErrConnectionNotExists) {
		t.Fatalf("SendEventToMember without connection: got %v, want ErrConnectionNotExists", err)
	}
}

func TestDropConnectionsClosesAllAndCancelsGraceTasks(t *testing.T) {
	mgr := NewManager("room1", time.Hour, nil)
	mgr.Add(New("alice", "room1", "secret"))
	mgr.Add(New("bob", "room1", "secret"))

	connA, connB := &fakeConn{}, &fakeConn{}
	mgr.ConnectionEstablished(context.Background(), "alice", connA)
	mgr.ConnectionEstablished(context.Background(), "bob", connB)
	mgr.ConnectionClosed("alice", ClosedReasonLost)

	if err := mgr.DropConnections(context.Background()); err != nil {
		t.Fatalf("DropConnections: %v", err)
	}

	if !connB.closed {
		t.Fatal("expected bob's connection to be closed")
	}
	if len(mgr.dropTasks) != 0 {
		t.Fatalf("expected grace tasks cleared, got %d", len(mgr.dropTasks))
	}
}
