package peer

import (
	"errors"
	"fmt"

	"medea/internal/id"
)

// ErrorKind categorizes a peer-level error for the Room actor's
// propagation policy: a protocol violation (Fatal) still only aborts the
// offending handler, never the Room, but is worth distinguishing from a
// transient TURN/transport hiccup.
type ErrorKind int

const (
	ErrKindFatal ErrorKind = iota
	ErrKindTransient
	ErrKindPeerClosed
)

// PeerError wraps an error with the peer and operation it occurred on.
type PeerError struct {
	Kind ErrorKind
	ID   id.PeerID
	Op   string
	Err  error
}

func (e *PeerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed for peer %s", e.Op, e.ID)
	}
	return fmt.Sprintf("%s failed for peer %s: %s", e.Op, e.ID, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

var (
	ErrNotFound          = errors.New("peer not found")
	ErrWrongState        = errors.New("peer in wrong state for this operation")
	ErrMidsMismatch      = errors.New("peer has a sender track without a mid")
	ErrNoTurnCredentials = errors.New("no turn credentials for member")
)

func NewFatalError(id id.PeerID, op string, err error) *PeerError {
	return &PeerError{Kind: ErrKindFatal, ID: id, Op: op, Err: err}
}

func NewTransientError(id id.PeerID, op string, err error) *PeerError {
	return &PeerError{Kind: ErrKindTransient, ID: id, Op: op, Err: err}
}

func NewClosedError(id id.PeerID, op string) *PeerError {
	return &PeerError{Kind: ErrKindPeerClosed, ID: id, Op: op, Err: ErrNotFound}
}
