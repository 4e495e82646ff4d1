package member

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"medea/internal/id"
)

// Manager is the per-Room registry of Members and their live
// RpcConnections: authorization, session establishment, reconnect grace,
// and event dispatch.
//
// A Manager is only ever touched from its owning Room's single-threaded
// mailbox goroutine, except for the timers installed by ConnectionClosed:
// those fire on their own goroutine and must not mutate Manager state
// directly, so they call back through onReconnectTimeout, which the Room
// wires to re-enter its own mailbox.
type Manager struct {
	roomID           id.RoomID
	members          map[id.MemberID]*Member
	reconnectTimeout time.Duration
	dropTasks        map[id.MemberID]*time.Timer

	onReconnectTimeout func(memberID id.MemberID)
}

func NewManager(roomID id.RoomID, reconnectTimeout time.Duration, onReconnectTimeout func(id.MemberID)) *Manager {
	return &Manager{
		roomID:             roomID,
		members:            make(map[id.MemberID]*Member),
		reconnectTimeout:   reconnectTimeout,
		dropTasks:          make(map[id.MemberID]*time.Timer),
		onReconnectTimeout: onReconnectTimeout,
	}
}

// Add registers mem, rejecting a duplicate id rather than silently
// replacing a live member (and, with it, its connection and endpoints).
func (m *Manager) Add(mem *Member) error {
	if _, exists := m.members[mem.ID]; exists {
		return fmt.Errorf("member %s: %w", mem.ID, ErrMemberAlreadyExists)
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *Manager) Remove(memberID id.MemberID) {
	if task, ok := m.dropTasks[memberID]; ok {
		task.Stop()
		delete(m.dropTasks, memberID)
	}
	delete(m.members, memberID)
}

func (m *Manager) GetByID(memberID id.MemberID) (*Member, bool) {
	mem, ok := m.members[memberID]
	return mem, ok
}

func (m *Manager) All() []*Member {
	out := make([]*Member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	return out
}

// Snapshot copies every member's current declarative state. Must only be
// called from the Room actor goroutine that owns m.
func (m *Manager) Snapshot() []MemberSnapshot {
	out := make([]MemberSnapshot, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem.Snapshot())
	}
	return out
}

// Authorize looks up a member by id and checks credentials in constant
// time, distinguishing a missing member from a wrong credential.
func (m *Manager) Authorize(memberID id.MemberID, credentials string) (*Member, error) {
	mem, ok := m.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrMemberNotExists)
	}
	want := []byte(mem.Credentials())
	got := []byte(credentials)
	if len(want) != len(got) || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrInvalidCredentials)
	}
	return mem, nil
}

// ConnectionEstablished registers conn as the member's live connection.
// Any connection still present (such as one presumed lost) is closed, and
// a pending reconnect-grace task is cancelled; the returned wasReconnect
// flag reports whether such a task was pending. Room.ConnectionEstablished
// scans the endpoint graph after every establishment, whatever the flag.
func (m *Manager) ConnectionEstablished(ctx context.Context, memberID id.MemberID, conn RpcConnection) (mem *Member, wasReconnect bool, err error) {
	mem, ok := m.members[memberID]
	if !ok {
		return nil, false, fmt.Errorf("member %s: %w", memberID, ErrMemberNotFound)
	}

	if task, pending := m.dropTasks[memberID]; pending {
		task.Stop()
		delete(m.dropTasks, memberID)
		wasReconnect = true
	}

	if old := mem.TakeConnection(); old != nil {
		if err := old.Close(ctx); err != nil {
			slog.Warn("closing stale rpc connection", "member_id", memberID, "error", err)
		}
	}

	mem.SetConnection(conn)
	return mem, wasReconnect, nil
}

// ConnectionClosed implements the Closed/Lost split from §4.3: Closed
// removes the connection immediately; Lost installs a delayed task that
// re-announces itself as Closed after reconnectTimeout unless cancelled by
// an intervening ConnectionEstablished.
func (m *Manager) ConnectionClosed(memberID id.MemberID, reason ClosedReason) {
	mem, ok := m.members[memberID]
	if !ok {
		return
	}

	switch reason {
	case ClosedReasonClosed:
		mem.TakeConnection()
		delete(m.dropTasks, memberID)

	case ClosedReasonLost:
		m.dropTasks[memberID] = time.AfterFunc(m.reconnectTimeout, func() {
			if m.onReconnectTimeout != nil {
				m.onReconnectTimeout(memberID)
			}
		})
	}
}

// SendEventToMember forwards event over the member's live connection.
func (m *Manager) SendEventToMember(ctx context.Context, memberID id.MemberID, event any) error {
	mem, ok := m.members[memberID]
	if !ok {
		return fmt.Errorf("member %s: %w", memberID, ErrMemberNotFound)
	}
	conn := mem.Connection()
	if conn == nil {
		return fmt.Errorf("member %s: %w", memberID, ErrConnectionNotExists)
	}
	if err := conn.SendEvent(ctx, event); err != nil {
		return fmt.Errorf("member %s: %w: %s", memberID, ErrUnableToSendEvent, err)
	}
	return nil
}

// DropConnections cancels every pending grace task and closes every active
// connection, returning once all closes have been attempted.
func (m *Manager) DropConnections(ctx context.Context) error {
	for memberID, task := range m.dropTasks {
		task.Stop()
		delete(m.dropTasks, memberID)
	}

	var firstErr error
	for _, mem := range m.members {
		conn := mem.TakeConnection()
		if conn == nil {
			continue
		}
		if err := conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
