// Package engineerr classifies the client-visible error taxonomy: unknown
// controlId, out-of-range value, readOnly violation, and playback-mode
// writes. These are the only engine errors that cross the
// HTTP boundary; everything else (transient I/O, decode errors, protocol
// violations) is recovered at the layer that owns the resource.
package engineerr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code returned to HTTP clients.
type Code string

const (
	CodeUnknownControl    Code = "unknownControl"
	CodeOutOfRange        Code = "outOfRange"
	CodeReadOnlyControl   Code = "readOnlyControl"
	CodePlaybackReadOnly  Code = "playbackReadOnly"
	CodeUnknownRadar      Code = "unknownRadar"
	CodeInvalidValue      Code = "invalidValue"
)

// ClientError is a 4xx-class error with a stable machine-readable code.
type ClientError struct {
	Code    Code
	Message string
}

func (e *ClientError) Error() string { return e.Message }

// New constructs a ClientError.
func New(code Code, message string) *ClientError {
	return &ClientError{Code: code, Message: message}
}

// As extracts a *ClientError from err, if any, the same way callers use
// errors.As.
func As(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var (
	ErrUnknownControl   = New(CodeUnknownControl, "unknown control id")
	ErrOutOfRange       = New(CodeOutOfRange, "value out of range")
	ErrReadOnlyControl  = New(CodeReadOnlyControl, "control is read-only")
	ErrPlaybackReadOnly = New(CodePlaybackReadOnly, "radar is a playback recording and does not accept control writes")
	ErrUnknownRadar     = New(CodeUnknownRadar, "unknown radar id")
	ErrInvalidValue     = New(CodeInvalidValue, "invalid value for control")
)

// HTTPStatus maps a Code to the HTTP status the API layer should return.
func HTTPStatus(c Code) int {
	switch c {
	case CodeUnknownControl, CodeUnknownRadar:
		return http.StatusNotFound
	case CodeOutOfRange, CodeInvalidValue:
		return http.StatusBadRequest
	case CodeReadOnlyControl, CodePlaybackReadOnly:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
