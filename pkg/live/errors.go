package live

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Kind classifies errors surfaced by a conversation.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindDevice
	KindDecode
	KindConnection
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindDevice:
		return "device"
	case KindDecode:
		return "decode"
	case KindConnection:
		return "connection"
	case KindPermission:
		return "permission"
	default:
		return "unknown"
	}
}

var (
	ErrAuth       = errors.New("authorization required")
	ErrDevice     = errors.New("audio device unavailable")
	ErrDecode     = errors.New("audio decode failed")
	ErrConnection = errors.New("connection error")
	ErrPermission = errors.New("permission denied")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("conversation closed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindDevice:
		return ErrDevice
	case KindDecode:
		return ErrDecode
	case KindConnection:
		return ErrConnection
	case KindPermission:
		return ErrPermission
	default:
		return nil
	}
}

// Error is an error raised by one of the conversation's components.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrDevice)
// holds for any device error.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not a conversation error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// permissionMarkers are matched against the lower-cased error text.
var permissionMarkers = []string{
	"permission",
	"api key not valid",
	"requested entity was not found",
}

// hasStatus403 reports whether msg carries 403 as a standalone token, so
// ports or byte counts that contain the digits do not match.
func hasStatus403(msg string) bool {
	fields := strings.FieldsFunc(msg, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.Contains(fields, "403")
}

// IsPermissionError reports whether a transport error indicates an
// authorization problem that needs the key to be selected again.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if hasStatus403(msg) {
		return true
	}
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyConnectionError wraps a transport error as a permission error or
// a generic connection error.
func classifyConnectionError(op string, err error) *Error {
	if IsPermissionError(err) {
		return newError(KindPermission, op, err)
	}
	return newError(KindConnection, op, err)
}

// Message renders a short message for the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindAuth:
		return "Select an API key to start a live conversation."
	case KindDevice:
		return "Microphone unavailable or permission denied."
	case KindDecode:
		return "Skipped an audio fragment that could not be decoded."
	case KindPermission:
		return "The API key was rejected; select a different key and try again."
	case KindConnection:
		return "An error occurred: " + rootMessage(err)
	default:
		return "Error starting the conversation: " + err.Error()
	}
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
