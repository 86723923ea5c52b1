package utils

import (
	"context"
	"errors"
	"fmt"

	"dovakin0007.com/notebook-grpc/internal/models"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

// ErrorDomain tags the ErrorInfo detail attached to every notebook error.
const ErrorDomain = "notebook"

var reasonCodes = map[string]codes.Code{
	"PERMISSION_DENIED": codes.PermissionDenied,
	"NOT_FOUND":         codes.NotFound,
	"INVALID_POSITION":  codes.OutOfRange,
	"CYCLE_DETECTED":    codes.FailedPrecondition,
	"CANNOT_DROP_ROOT":  codes.FailedPrecondition,
	"ALREADY_PENDING":   codes.FailedPrecondition,
	"ALREADY_MEMBER":    codes.AlreadyExists,
	"UNKNOWN_USER":      codes.NotFound,
	"TIMEOUT":           codes.DeadlineExceeded,
	"TRANSPORT_FAILURE": codes.Unavailable,
	"INVALID_ARGUMENT":  codes.InvalidArgument,
}

// ToStatus converts a store error into a gRPC status error. Taxonomy errors
// carry their reason in an ErrorInfo detail; anything else is Internal.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	reason, ok := models.Reason(err)
	if !ok {
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
	st := status.New(reasonCodes[reason], err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// FromStatus maps a gRPC error back to the taxonomy sentinel it was built
// from. Transport failures without a notebook reason become ErrTimeout or
// ErrTransportFailure.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", models.ErrTransportFailure, err)
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		if sentinel, ok := models.Taxonomy[info.GetReason()]; ok {
			return wrapStatus(sentinel, st)
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return wrapStatus(models.ErrTimeout, st)
	case codes.InvalidArgument:
		return wrapStatus(models.ErrInvalidArgument, st)
	case codes.PermissionDenied:
		return wrapStatus(models.ErrPermissionDenied, st)
	case codes.NotFound:
		return wrapStatus(models.ErrNotFound, st)
	}
	return wrapStatus(models.ErrTransportFailure, st)
}

// statusError keeps the server's message while matching the sentinel with
// errors.Is.
type statusError struct {
	sentinel error
	msg      string
}

func (e *statusError) Error() string { return e.msg }

func (e *statusError) Unwrap() error { return e.sentinel }

func wrapStatus(sentinel error, st *status.Status) error {
	if st.Message() == "" {
		return sentinel
	}
	return &statusError{sentinel: sentinel, msg: st.Message()}
}

var allowedPaths = map[string]struct{}{
	models.FieldComment:  {},
	models.FieldTitle:    {},
	models.FieldInput:    {},
	models.FieldOutput:   {},
	models.FieldFormat:   {},
	models.FieldTextData: {},
}

// NormalizeMask checks that the mask names one known node field and
// returns it.
func NormalizeMask(m *fieldmaskpb.FieldMask) (string, error) {
	if m == nil || len(m.Paths) != 1 {
		return "", fmt.Errorf("%w: the update mask must name exactly one field", models.ErrInvalidArgument)
	}
	if _, ok := allowedPaths[m.Paths[0]]; !ok {
		return "", fmt.Errorf("%w: invalid field mask path %q", models.ErrInvalidArgument, m.Paths[0])
	}
	return m.Paths[0], nil
}

func FieldMask(field string) *fieldmaskpb.FieldMask {
	return &fieldmaskpb.FieldMask{Paths: []string{field}}
}
