// Package controlapi implements the declarative Create/Apply/Delete/Get
// surface over the hierarchical local:// element namespace (§6), the
// RoomService façade and static-spec loader (§4.5), and the numeric error
// code table (§7).
package controlapi

import (
	"errors"
	"fmt"

	"medea/internal/localuri"
	"medea/internal/member"
	"medea/internal/room"
)

type ErrorCode int

const (
	CodeUnknown ErrorCode = 1000

	CodePublishEndpointNotFound ErrorCode = 1001
	CodePlayEndpointNotFound    ErrorCode = 1002
	CodeMemberNotFound          ErrorCode = 1003
	CodeRoomNotFound            ErrorCode = 1004
	CodeEndpointNotFound        ErrorCode = 1005

	CodeElementIDForWrongKind ErrorCode = 1100
	CodeInvalidSrcURI         ErrorCode = 1101
	CodeNotSourceURI          ErrorCode = 1102
	CodeElementIDMismatch     ErrorCode = 1103
	CodeInvalidSpec           ErrorCode = 1104
	CodeNoSrcURI              ErrorCode = 1105
	CodeNotSameRoomIDs        ErrorCode = 1106
	CodeElementAlreadyBound   ErrorCode = 1107

	CodeNotLocal        ErrorCode = 1200
	CodeTooManySegments ErrorCode = 1201
	CodeMissingSegments ErrorCode = 1202
	CodeEmptyElementURI ErrorCode = 1203

	CodeRoomAlreadyExists     ErrorCode = 1300
	CodeMemberAlreadyExists   ErrorCode = 1301
	CodeEndpointAlreadyExists ErrorCode = 1302
)

// ErrorResponse is the wire shape of a Control API failure: a status
// (mirrors the HTTP status the transport used), the numeric code, a
// human-readable text, and the element URI the error concerns, when known.
type ErrorResponse struct {
	Status  int       `json:"-"`
	Code    ErrorCode `json:"code"`
	Text    string    `json:"text"`
	Element string    `json:"element,omitempty"`
}

func (e *ErrorResponse) Error() string { return e.Text }

func newErr(status int, code ErrorCode, element, text string) *ErrorResponse {
	return &ErrorResponse{Status: status, Code: code, Text: text, Element: element}
}

var ErrNotSameRoomIDs = errors.New("control api: delete request ids span more than one room")

// FromError maps an internal error into a Control API ErrorResponse, per
// the dispatch table in the original error_codes.rs: LocalUri parse
// failures, Member/Room not-found, and Room-layer RoomError each land in
// their own numeric range.
func FromError(err error, element string) *ErrorResponse {
	var existing *ErrorResponse
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, localuri.ErrNotLocal):
		return newErr(400, CodeNotLocal, element, err.Error())
	case errors.Is(err, localuri.ErrTooManySegments):
		return newErr(400, CodeTooManySegments, element, err.Error())
	case errors.Is(err, localuri.ErrMissingSegments):
		return newErr(400, CodeMissingSegments, element, err.Error())
	case errors.Is(err, localuri.ErrEmpty):
		return newErr(400, CodeEmptyElementURI, element, err.Error())

	case errors.Is(err, member.ErrMemberNotFound), errors.Is(err, member.ErrMemberNotExists):
		return newErr(404, CodeMemberNotFound, element, err.Error())
	case errors.Is(err, member.ErrInvalidCredentials):
		return newErr(401, CodeUnknown, element, err.Error())

	case errors.Is(err, ErrRoomNotFound):
		return newErr(404, CodeRoomNotFound, element, err.Error())
	case errors.Is(err, ErrRoomAlreadyExists):
		return newErr(409, CodeRoomAlreadyExists, element, err.Error())
	case errors.Is(err, ErrMemberAlreadyExists), errors.Is(err, member.ErrMemberAlreadyExists):
		return newErr(409, CodeMemberAlreadyExists, element, err.Error())
	case errors.Is(err, ErrEndpointAlreadyExists), errors.Is(err, member.ErrEndpointAlreadyExists):
		return newErr(409, CodeEndpointAlreadyExists, element, err.Error())
	case errors.Is(err, ErrEndpointNotFound):
		return newErr(404, CodeEndpointNotFound, element, err.Error())
	case errors.Is(err, ErrNotSameRoomIDs):
		return newErr(400, CodeNotSameRoomIDs, element, err.Error())

	case errors.Is(err, room.ErrClosed):
		return newErr(410, CodeRoomNotFound, element, err.Error())

	default:
		return newErr(500, CodeUnknown, element, fmt.Sprintf("unclassified error: %s", err))
	}
}
