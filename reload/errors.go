package reload

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error Types
// ---------------------------------------------------------------------------

var (
	ErrNotFound                 = errors.New("no such member")
	ErrMemberNoLongerExists     = errors.New("member no longer exists")
	ErrIncompatibleLayoutChange = errors.New("incompatible layout change")
	ErrParseFailure             = errors.New("malformed type image")
	ErrInvocationFailure        = errors.New("invocation failed")

	ErrIllegalArgument = errors.New("illegal argument")
	ErrIllegalAccess   = errors.New("illegal access")
	ErrAbstractMethod  = errors.New("abstract method")
	ErrNotReloadable   = errors.New("type is not reloadable")
	ErrRegistryClosed  = errors.New("type registry closed")
	ErrUnknownType     = errors.New("unknown type")
	ErrUnresolvedBody  = errors.New("unresolved body reference")
	ErrUnknownRegistry = errors.New("unknown registry")
	ErrNoSuchVersion   = errors.New("no such version")
)

// Image decoding errors. They are always reported wrapped in a *ParseError.
var (
	ErrInvalidMagic     = errors.New("invalid magic number: expected HSTI")
	ErrVersionMismatch  = errors.New("image format version mismatch")
	ErrCorruptHeader    = errors.New("corrupt image header")
	ErrCorruptData      = errors.New("corrupt image data")
	ErrUnexpectedEOF    = errors.New("unexpected end of image data")
	ErrChecksumMismatch = errors.New("image checksum mismatch")
)

// LookupError reports a member lookup that found nothing.
type LookupError struct {
	Type      string
	Kind      Kind
	Name      string
	Signature string
}

func (e *LookupError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("%s: %s %s.%s", ErrNotFound, e.Kind, e.Type, e.Name)
	}
	return fmt.Sprintf("%s: %s %s.%s", ErrNotFound, e.Kind, e.Type, MemberKey{e.Name, e.Signature})
}

func (e *LookupError) Is(target error) bool { return target == ErrNotFound }

// ParseError reports a binary type image that could not be decoded.
type ParseError struct {
	Type string // may be empty when the name could not be read
	Err  error
}

func (e *ParseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: %v", ErrParseFailure, e.Err)
	}
	return fmt.Sprintf("%s for %s: %v", ErrParseFailure, e.Type, e.Err)
}

func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }
func (e *ParseError) Unwrap() error        { return e.Err }

// LayoutViolation describes one change that breaks existing instance storage.
type LayoutViolation struct {
	Member string
	Reason string
}

func (v LayoutViolation) String() string { return v.Member + ": " + v.Reason }

// LayoutChangeError reports a reload rejected to protect live instances.
type LayoutChangeError struct {
	Type       string
	Violations []LayoutViolation
}

func (e *LayoutChangeError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s in %s: %s", ErrIncompatibleLayoutChange, e.Type, strings.Join(parts, "; "))
}

func (e *LayoutChangeError) Is(target error) bool { return target == ErrIncompatibleLayoutChange }

// InvocationError wraps a fault raised by a member body.
type InvocationError struct {
	Member string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInvocationFailure, e.Member, e.Err)
}

func (e *InvocationError) Is(target error) bool { return target == ErrInvocationFailure }
func (e *InvocationError) Unwrap() error        { return e.Err }
