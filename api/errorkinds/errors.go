package errorkinds

import (
	"errors"
	"strings"

	"github.com/Southclaws/fault/ftag"
)

// Kinds of session errors. These are ftag kinds, so they survive
// fault.Wrap chains and can be retrieved with ftag.Get.
const (
	KindDeviceNotAvailable     ftag.Kind = "DEVICE_NOT_AVAILABLE"
	KindControllerNotAvailable ftag.Kind = "CONTROLLER_NOT_AVAILABLE"
	KindNoControllerAvailable  ftag.Kind = "NO_CONTROLLER_AVAILABLE"
	KindControllerNotReady     ftag.Kind = "CONTROLLER_NOT_READY"
	KindPairFailed             ftag.Kind = "PAIR_FAILED"
	KindNotConnected           ftag.Kind = "NOT_CONNECTED"
	KindReadWriteFailed        ftag.Kind = "READ_WRITE_FAILED"
	KindInvalidArguments       ftag.Kind = "INVALID_ARGUMENTS"
	KindTimeout                ftag.Kind = "TIMEOUT"
	KindUnknown                ftag.Kind = "UNKNOWN"
)

var descriptions = map[ftag.Kind]string{
	KindDeviceNotAvailable:     "Device is not available",
	KindControllerNotAvailable: "Controller is not available",
	KindNoControllerAvailable:  "No controller is available",
	KindControllerNotReady:     "Controller is not ready",
	KindPairFailed:             "Pairing failed",
	KindNotConnected:           "Device is not connected",
	KindReadWriteFailed:        "Attribute access failed",
	KindInvalidArguments:       "Invalid arguments",
	KindTimeout:                "Operation timed out",
	KindUnknown:                "Unknown error",
}

// Error describes a classified session error.
type Error struct {
	// Kind is the taxonomy tag of the error.
	Kind ftag.Kind

	// Code holds the backend-native error code, if any.
	Code string

	// Reason holds a sub-reason, for example the cause of
	// a failed attribute access.
	Reason string

	// Engine and Version identify the backend which raised the error.
	Engine  string
	Version string
}

// Session errors.
var (
	ErrDeviceNotAvailable     = &Error{Kind: KindDeviceNotAvailable}
	ErrControllerNotAvailable = &Error{Kind: KindControllerNotAvailable}
	ErrNoControllerAvailable  = &Error{Kind: KindNoControllerAvailable}
	ErrControllerNotReady     = &Error{Kind: KindControllerNotReady}
	ErrPairFailed             = &Error{Kind: KindPairFailed}
	ErrNotConnected           = &Error{Kind: KindNotConnected}
	ErrReadWriteFailed        = &Error{Kind: KindReadWriteFailed}
	ErrInvalidArguments       = &Error{Kind: KindInvalidArguments}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrUnknown                = &Error{Kind: KindUnknown}

	ErrAttributeNotAvailable = &Error{Kind: KindReadWriteFailed, Reason: "attribute not available"}
	ErrWriteNotVerified      = &Error{Kind: KindReadWriteFailed, Reason: "written value was not read back"}
)

// General errors.
var (
	ErrSessionNotExist = errors.New("the session does not exist")
	ErrNotSupported    = errors.New("this operation is not supported")
	ErrMethodCall      = errors.New("the method call is invalid")
	ErrMethodTimeout   = errors.New("the method call timed out")
	ErrTransportClosed = errors.New("the transport channel is closed")

	ErrSubscriptionClosed = errors.New("the subscription is closed")
)

// New returns a new error of the provided kind.
func New(kind ftag.Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

// Error returns the description of the error.
func (e *Error) Error() string {
	sb := strings.Builder{}

	desc, ok := descriptions[e.Kind]
	if !ok {
		desc = string(e.Kind)
	}
	sb.WriteString(desc)

	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}

	if e.Code != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Code)
		sb.WriteString(")")
	}

	if e.Engine != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Engine)
		if e.Version != "" {
			sb.WriteString(" ")
			sb.WriteString(e.Version)
		}
		sb.WriteString("]")
	}

	return sb.String()
}

// Is reports whether target is an error of the same kind.
// A target without a reason matches every reason of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// WithSession returns a copy of the error which carries the engine name and version.
func (e *Error) WithSession(engine, version string) *Error {
	c := *e
	c.Engine = engine
	c.Version = version

	return &c
}

// WithCode returns a copy of the error with the provided native code and reason.
func (e *Error) WithCode(code, reason string) *Error {
	c := *e
	c.Code = code
	if reason != "" {
		c.Reason = reason
	}

	return &c
}

// KindOf returns the taxonomy kind of err.
func KindOf(err error) ftag.Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ftag.Get(err)
}
