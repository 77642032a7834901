// Package policy maps backend failure signals onto the session error
// taxonomy, and decides how each one is recovered from.
package policy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
)

// Verb identifies the session operation a signal was observed for.
type Verb string

const (
	VerbConnect        Verb = "connect"
	VerbDisconnect     Verb = "disconnect"
	VerbPair           Verb = "pair"
	VerbTrust          Verb = "trust"
	VerbRemove         Verb = "remove"
	VerbInfo           Verb = "info"
	VerbStartDiscovery Verb = "start-discovery"
	VerbStopDiscovery  Verb = "stop-discovery"
	VerbResolve        Verb = "resolve"
	VerbRead           Verb = "read"
	VerbWrite          Verb = "write"
	VerbStartNotify    Verb = "start-notify"
	VerbStopNotify     Verb = "stop-notify"
	VerbController     Verb = "controller"
)

// Action describes how a session recovers from a signal.
type Action int

const (
	// Succeed treats the signal as success.
	Succeed Action = iota

	// RetryAfterDisconnect forces a disconnect and issues the verb once more.
	RetryAfterDisconnect

	// Escalate surfaces the decision's error to the caller.
	Escalate
)

const (
	// TimeoutCode is the code of a signal raised by the session itself,
	// when a command got no reply before its deadline.
	TimeoutCode = "Timeout"

	// NoReplyCode is the error name the backend reports when it got no
	// reply from the device or from the daemon it calls.
	NoReplyCode = "org.freedesktop.DBus.Error.NoReply"
)

var (
	deviceNotAvailable     = regexp.MustCompile(`(?i)\bdevice\s+\S+\s+not available`)
	controllerNotAvailable = regexp.MustCompile(`(?i)\bcontroller\s+\S+\s+not available`)
)

// Signal is a failure reported by the backend.
type Signal struct {
	// Code is the backend-native error name, for example "org.bluez.Error.InProgress".
	Code string

	// Message is the backend's description of the failure.
	Message string
}

// Decision is the result of applying the policy to a signal.
type Decision struct {
	Action Action

	// Already is set when the signal means the operation was already done.
	Already bool

	// Err is set when Action is Escalate.
	Err error
}

// Policy holds the recovery rules of a session.
type Policy struct {
	// PairNoReplyIsSuccess treats a pairing request which got no reply as paired.
	// The backend has been observed to drop the reply of a pairing that completed.
	PairNoReplyIsSuccess bool

	// Engine and Version are attached to escalated errors.
	Engine  string
	Version string
}

// TimedOut returns the signal of a command which got no reply within timeout.
func TimedOut(command string, timeout time.Duration) *Signal {
	message := fmt.Sprintf("No reply to %q", command)
	if timeout > 0 {
		message += " within " + timeout.String()
	}

	return &Signal{Code: TimeoutCode, Message: message}
}

// IsTimeout reports whether the signal was raised by a local deadline.
func (s *Signal) IsTimeout() bool {
	return s.Code == TimeoutCode
}

// Error returns the description of the signal.
func (s *Signal) Error() string {
	switch {
	case s.Code == "":
		return s.Message

	case s.Message == "":
		return s.Code
	}

	return s.Code + ": " + s.Message
}

// Has reports whether the signal's code or message contains any of the fragments,
// ignoring case.
func (s *Signal) Has(fragments ...string) bool {
	text := strings.ToLower(s.Code + " " + s.Message)
	for _, f := range fragments {
		if strings.Contains(text, strings.ToLower(f)) {
			return true
		}
	}

	return false
}

// Decide applies the recovery rules of verb to err.
// A nil error always succeeds.
func (p Policy) Decide(verb Verb, err error) Decision {
	if err == nil {
		return Decision{Action: Succeed}
	}

	var sig *Signal
	if !errors.As(err, &sig) {
		return p.escalateError(err)
	}

	if sig.IsTimeout() {
		return p.escalate(errorkinds.ErrTimeout, sig, "")
	}

	if d, ok := p.decideVerb(verb, sig); ok {
		return d
	}

	return p.decideCommon(verb, sig)
}

// Exhausted escalates a signal whose recovery was already attempted once.
func (p Policy) Exhausted(verb Verb, err error) Decision {
	var sig *Signal
	if !errors.As(err, &sig) {
		return p.escalateError(err)
	}

	if sig.IsTimeout() {
		return p.escalate(errorkinds.ErrTimeout, sig, "")
	}

	if verb == VerbConnect {
		return p.escalate(errorkinds.ErrNotConnected, sig, "still in progress after retry")
	}

	return p.decideCommon(verb, sig)
}

func (p Policy) decideVerb(verb Verb, sig *Signal) (Decision, bool) {
	switch verb {
	case VerbConnect:
		switch {
		case sig.Has("AlreadyConnected", "already connected"):
			return succeedAlready(), true

		case sig.Has("InProgress", "already in progress"):
			return Decision{Action: RetryAfterDisconnect}, true

		case sig.Has(NoReplyCode, "Failed to connect", "ConnectionAttemptFailed", "connect failed"):
			return p.escalate(errorkinds.ErrNotConnected, sig, "connect failed"), true
		}

	case VerbPair:
		switch {
		case sig.Has("AlreadyExists", "already exists", "already paired"):
			return succeedAlready(), true

		case sig.Has(NoReplyCode):
			if p.PairNoReplyIsSuccess {
				return Decision{Action: Succeed}, true
			}

			return p.escalate(errorkinds.ErrPairFailed, sig, "no reply"), true

		case sig.Has("AuthenticationCanceled", "AuthenticationFailed", "AuthenticationRejected",
			"AuthenticationTimeout", "ConnectionAttemptFailed", "Failed to pair"):
			return p.escalate(errorkinds.ErrPairFailed, sig, ""), true
		}

	case VerbRemove:
		if sig.Has("DoesNotExist", "Does Not Exist") || deviceNotAvailable.MatchString(sig.Message) {
			return succeedAlready(), true
		}

	case VerbStartDiscovery:
		if sig.Has("InProgress", "already in progress") {
			return succeedAlready(), true
		}

	case VerbStopDiscovery:
		if sig.Has("No discovery started") {
			return succeedAlready(), true
		}

	case VerbStartNotify:
		if sig.Has("Already notifying", "Notify already", "InProgress") {
			return succeedAlready(), true
		}

	case VerbStopNotify:
		if sig.Has("No notify session started", "Not notifying") {
			return succeedAlready(), true
		}

	case VerbRead, VerbWrite:
		switch {
		case sig.Has("NotPermitted", "NotAuthorized", "not permitted"):
			return p.escalate(errorkinds.ErrReadWriteFailed, sig, "not permitted"), true

		case sig.Has("NotSupported"):
			return p.escalate(errorkinds.ErrReadWriteFailed, sig, "not supported"), true

		case sig.Has("InvalidOffset", "InvalidValueLength"):
			return p.escalate(errorkinds.ErrReadWriteFailed, sig, "invalid value"), true

		case sig.Has("InProgress", "already in progress"):
			return p.escalate(errorkinds.ErrReadWriteFailed, sig, "in progress"), true
		}
	}

	return Decision{}, false
}

func (p Policy) decideCommon(verb Verb, sig *Signal) Decision {
	switch {
	case sig.Has("NotConnected", "Not connected", "No ATT transport", "No device connected"):
		return p.escalate(errorkinds.ErrNotConnected, sig, "")

	case sig.Has("NotReady", "not powered", "Resource Not Ready", "rfkill", "Blocked through"):
		return p.escalate(errorkinds.ErrControllerNotReady, sig, "")

	case sig.Has("No default controller", "Controller not available", "No such adapter"),
		controllerNotAvailable.MatchString(sig.Message):
		return p.escalate(errorkinds.ErrControllerNotAvailable, sig, "")

	case sig.Has("not available", "UnknownObject", "DoesNotExist"):
		return p.escalate(errorkinds.ErrDeviceNotAvailable, sig, "")

	case sig.Has("InvalidArguments", "Invalid argument", "Invalid value", "Missing"):
		return p.escalate(errorkinds.ErrInvalidArguments, sig, "")

	case sig.Has("No attribute selected", "Failed to read", "Failed to write", "Failed to start notify", "Failed to stop notify"):
		return p.escalate(errorkinds.ErrReadWriteFailed, sig, string(verb))

	case sig.Has("NoReply", "Timeout", "Timed out"):
		return p.escalate(errorkinds.ErrTimeout, sig, "")
	}

	return p.escalate(errorkinds.ErrUnknown, sig, "")
}

func (p Policy) escalate(kind *errorkinds.Error, sig *Signal, reason string) Decision {
	if reason == "" {
		reason = sig.Message
	}

	return Decision{
		Action: Escalate,
		Err:    kind.WithCode(sig.Code, reason).WithSession(p.Engine, p.Version),
	}
}

// escalateError surfaces errors which did not come from the backend.
// Taxonomy errors get the session identity attached, deadline errors
// become Timeout, and everything else is passed through.
func (p Policy) escalateError(err error) Decision {
	var kerr *errorkinds.Error

	switch {
	case errors.As(err, &kerr):
		if kerr.Engine == "" {
			return Decision{Action: Escalate, Err: kerr.WithSession(p.Engine, p.Version)}
		}

	case errors.Is(err, context.DeadlineExceeded), errorkinds.KindOf(err) == errorkinds.KindTimeout:
		return Decision{Action: Escalate, Err: errorkinds.ErrTimeout.WithCode("", err.Error()).WithSession(p.Engine, p.Version)}
	}

	return Decision{Action: Escalate, Err: err}
}

func succeedAlready() Decision {
	return Decision{Action: Succeed, Already: true}
}
