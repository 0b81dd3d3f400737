// Package apperr defines the engine's error taxonomy and its gRPC mapping.
package apperr

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the errdetails domain attached to gRPC statuses.
const Domain = "github.com/danielpatrickdp/assessment-engine"

// #region kind

// Kind is a machine-readable error category.
type Kind string

const (
	KindUnknown         Kind = "UNKNOWN"
	KindNotFound        Kind = "NOT_FOUND"
	KindValidation      Kind = "VALIDATION"
	KindPersistence     Kind = "PERSISTENCE_FAILURE"
	KindMalformedRule   Kind = "MALFORMED_RULE"
	KindFlowCompleted   Kind = "FLOW_COMPLETED"
	KindAlreadyAnswered Kind = "ALREADY_ANSWERED"
)

// GRPCCode maps an error kind to a gRPC status code.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindNotFound:
		return codes.NotFound
	case KindValidation:
		return codes.InvalidArgument
	case KindPersistence:
		return codes.Unavailable
	case KindMalformedRule, KindFlowCompleted:
		return codes.FailedPrecondition
	case KindAlreadyAnswered:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// #endregion kind

// #region error

// Error is the domain error type carried through the engine.
type Error struct {
	Kind     Kind
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a domain error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a domain error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e carrying the given metadata.
func (e *Error) WithMetadata(md map[string]string) *Error {
	cp := *e
	cp.Metadata = md
	return &cp
}

// NotFound reports a catalog or store lookup miss.
func NotFound(what, id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Message:  what + " not found: " + id,
		Metadata: map[string]string{"resource": what, "id": id},
	}
}

// Validation reports missing or invalid caller input.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Persistence wraps a store read or write failure.
func Persistence(op string, cause error) *Error {
	return &Error{
		Kind:     KindPersistence,
		Message:  op,
		Metadata: map[string]string{"op": op},
		Cause:    cause,
	}
}

// MalformedRule reports an unparseable condition or unknown operator.
func MalformedRule(ruleID, reason string) *Error {
	return &Error{
		Kind:     KindMalformedRule,
		Message:  "malformed rule " + ruleID + ": " + reason,
		Metadata: map[string]string{"rule_id": ruleID},
	}
}

// #endregion error

// #region helpers

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ToGRPCStatus converts err to a gRPC status error with ErrorInfo details.
// Errors outside the taxonomy become codes.Internal with their message.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, err.Error())
	}
	st := status.New(e.Kind.GRPCCode(), e.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Kind),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// FromGRPCStatus recovers the kind carried in a status produced by ToGRPCStatus.
func FromGRPCStatus(err error) Kind {
	st, ok := status.FromError(err)
	if !ok {
		return KindUnknown
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == Domain {
			return Kind(info.Reason)
		}
	}
	return KindUnknown
}

// #endregion helpers
