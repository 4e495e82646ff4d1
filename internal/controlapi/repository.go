package controlapi

import (
	"errors"
	"sync"
	"time"

	"medea/internal/id"
	"medea/internal/room"
	"medea/internal/turn"
)

var (
	ErrRoomNotFound          = errors.New("control api: room not found")
	ErrRoomAlreadyExists     = errors.New("control api: room already exists")
	ErrMemberAlreadyExists   = errors.New("control api: member already exists")
	ErrEndpointAlreadyExists = errors.New("control api: endpoint already exists")
	ErrEndpointNotFound      = errors.New("control api: endpoint not found")
)

// RoomRepository is the process-global registry of live Room actors,
// generalizing the teacher's single in-process Hub registry (one Hub per
// running process) to one Room per id.RoomID. Guarded by a plain mutex
// since membership changes (Create/Delete) are rare next to the
// traffic each Room's own actor mailbox absorbs.
type RoomRepository struct {
	mu               sync.Mutex
	rooms            map[id.RoomID]*room.Room
	turn             turn.Service
	reconnectTimeout time.Duration
}

func NewRoomRepository(turnService turn.Service, reconnectTimeout time.Duration) *RoomRepository {
	return &RoomRepository{
		rooms:            make(map[id.RoomID]*room.Room),
		turn:             turnService,
		reconnectTimeout: reconnectTimeout,
	}
}

func (r *RoomRepository) Get(roomID id.RoomID) (*room.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	return rm, ok
}

func (r *RoomRepository) Create(roomID id.RoomID) (*room.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[roomID]; exists {
		return nil, ErrRoomAlreadyExists
	}
	rm := room.New(roomID, r.turn, r.reconnectTimeout)
	r.rooms[roomID] = rm
	return rm, nil
}

// GetOrCreate is used by Apply, which is idempotent over room existence.
func (r *RoomRepository) GetOrCreate(roomID id.RoomID) *room.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := room.New(roomID, r.turn, r.reconnectTimeout)
	r.rooms[roomID] = rm
	return rm
}

func (r *RoomRepository) Delete(roomID id.RoomID) (*room.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	return rm, ok
}

func (r *RoomRepository) All() map[id.RoomID]*room.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[id.RoomID]*room.Room, len(r.rooms))
	for k, v := range r.rooms {
		out[k] = v
	}
	return out
}
