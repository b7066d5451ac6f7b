// Package cmn provides common low-level types and utilities shared by every
// filevault package: the error taxonomy, path resolution, and JSON
// persistence (cmn/jsp).
package cmn

import "fmt"

// Kind enumerates the error taxonomy the outermost HTTP handler maps 1:1 to
// status codes. Core packages never return anything else for expected
// failure paths.
type Kind int

const (
	KindNone Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayloadTooLarge
	KindInvalidPath
	KindInvalidRequest
	KindEscape
	KindAtLimit
	KindIntoItself
	KindParentMissing
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindInvalidPath:
		return "InvalidPath"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindEscape:
		return "Escape"
	case KindAtLimit:
		return "AtLimit"
	case KindIntoItself:
		return "IntoItself"
	case KindParentMissing:
		return "ParentMissing"
	case KindUpstream:
		return "UpstreamError"
	default:
		return "None"
	}
}

// Error is the single error type core packages return for expected failure
// paths. It carries a Kind so the outermost handler can map it to an HTTP
// status without string matching.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "resolveSafe", "s3.list"
	Path string // virtual path involved, if any
	Err  error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s %q: %v", e.Kind, e.Op, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %s %q", e.Kind, e.Op, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a *Error of the given kind.
func NewError(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf extracts the Kind from err, defaulting to KindUpstream for any
// error that did not originate as a *cmn.Error — an unexpected failure
// outside the known taxonomy is treated as an upstream/internal error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *Error
	if asError(err, &ce) {
		return ce.Kind
	}
	return KindUpstream
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps a Kind to the status code in spec §7.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthorized:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindPayloadTooLarge:
		return 413
	case KindInvalidPath, KindInvalidRequest, KindEscape, KindAtLimit, KindIntoItself, KindParentMissing:
		return 400
	default:
		return 500
	}
}

// PublicMessage is the string returned on the wire for a given error. Escape
// is deliberately rendered as a generic not-found message to avoid
// disclosing sandbox boundaries (spec §7).
func PublicMessage(err error) string {
	k := KindOf(err)
	switch k {
	case KindEscape:
		return "Path not found."
	case KindAtLimit:
		return "Maximum number of S3 connections reached."
	case KindUpstream, KindNone:
		return "Internal error."
	default:
		if ce, ok := err.(*Error); ok {
			return ce.Error()
		}
		return k.String()
	}
}
