package member

import "errors"

// ErrMemberNotExists and ErrInvalidCredentials distinguish a missing member
// from a wrong credential, so the Control/Client API transport can report the right
// error code without the core knowing about HTTP/WS status codes.
var (
	ErrMemberNotExists       = errors.New("member does not exist")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMemberNotFound        = errors.New("member not found")
	ErrMemberAlreadyExists   = errors.New("member already exists")
	ErrEndpointAlreadyExists = errors.New("endpoint already exists")
	ErrConnectionNotExists   = errors.New("member has no live rpc connection")
	ErrUnableToSendEvent     = errors.New("unable to send event to member")
)
