package models

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrCannotDropRoot   = errors.New("cannot drop notebook root")
	ErrAlreadyPending   = errors.New("execution already pending")
	ErrAlreadyMember    = errors.New("already a member")
	ErrUnknownUser      = errors.New("unknown user")
	ErrTimeout          = errors.New("request timed out")
	ErrTransportFailure = errors.New("transport failure")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Taxonomy lists every sentinel a store or session may return, keyed by the
// reason string used on the wire.
var Taxonomy = map[string]error{
	"PERMISSION_DENIED": ErrPermissionDenied,
	"NOT_FOUND":         ErrNotFound,
	"INVALID_POSITION":  ErrInvalidPosition,
	"CYCLE_DETECTED":    ErrCycleDetected,
	"CANNOT_DROP_ROOT":  ErrCannotDropRoot,
	"ALREADY_PENDING":   ErrAlreadyPending,
	"ALREADY_MEMBER":    ErrAlreadyMember,
	"UNKNOWN_USER":      ErrUnknownUser,
	"TIMEOUT":           ErrTimeout,
	"TRANSPORT_FAILURE": ErrTransportFailure,
	"INVALID_ARGUMENT":  ErrInvalidArgument,
}

// Reason returns the wire reason of the first taxonomy member err wraps.
func Reason(err error) (string, bool) {
	for reason, sentinel := range Taxonomy {
		if errors.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func invalidPosition(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidPosition}, args...)...)
}
