package clientapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"medea/internal/controlapi"
	"medea/internal/id"
	"medea/internal/member"
	"medea/internal/turn"
)

type stubTurnService struct{}

func (stubTurnService) Create(ctx context.Context, peerID id.PeerID, roomID id.RoomID, policy turn.UnreachablePolicy) (*turn.IceUser, error) {
	return &turn.IceUser{PeerID: peerID}, nil
}

func (stubTurnService) Delete(ctx context.Context, users ...*turn.IceUser) error { return nil }

func newTestHandlerServer(t *testing.T) (*httptest.Server, *controlapi.RoomRepository) {
	t.Helper()
	repo := controlapi.NewRoomRepository(stubTurnService{}, time.Second)
	rm, err := repo.Create("room1")
	if err != nil {
		t.Fatalf("Create room: %v", err)
	}
	if err := rm.CreateMember(member.New("alice", "room1", "secret")); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}

	handler := NewHandler(repo, []string{"*"}, time.Minute, time.Minute, time.Second, nil, 1000, time.Minute)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, repo
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestServeWSRejectsUnknownRoom(t *testing.T) {
	server, _ := newTestHandlerServer(t)

	_, httpResp, dialErr := websocket.DefaultDialer.Dial(wsURL(server, "/ws/no-such-room/alice"), nil)
	if dialErr == nil {
		t.Fatal("expected dial to fail for an unknown room")
	}
	if httpResp == nil || httpResp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %v", httpResp)
	}
}

func TestServeWSCompletesIdentifyHandshake(t *testing.T) {
	server, _ := newTestHandlerServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/room1/alice"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	identify := identifyMessage{MemberID: "alice", Credentials: "secret"}
	payload, _ := json.Marshal(identify)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	// Nothing is pushed proactively once identify succeeds, so a read
	// should time out rather than observe a close frame — a close error
	// here would mean the server tore the connection down.
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	netErr, ok := err.(interface{ Timeout() bool })
	if !ok || !netErr.Timeout() {
		t.Fatalf("expected a read timeout (connection left open), got: %v", err)
	}
}

func TestServeWSClosesOnWrongCredentials(t *testing.T) {
	server, _ := newTestHandlerServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/room1/alice"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	identify := identifyMessage{MemberID: "alice", Credentials: "wrong"}
	payload, _ := json.Marshal(identify)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection after bad credentials")
	}
}

func TestServeWSClosesOnMemberIDMismatch(t *testing.T) {
	server, _ := newTestHandlerServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/room1/alice"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	identify := identifyMessage{MemberID: "somebody-else", Credentials: "secret"}
	payload, _ := json.Marshal(identify)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection after a member id mismatch")
	}
}
