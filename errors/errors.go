package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which bridge component raised the error
type Phase string

const (
	PhaseInit     Phase = "init"     // interface table loading and levels
	PhaseRegister Phase = "register" // class database registration
	PhaseCall     Phase = "call"     // inbound method and property calls
	PhaseMarshal  Phase = "marshal"  // Variant and typed storage conversion
	PhaseBinding  Phase = "binding"  // instance binding lifecycle
	PhaseHost     Phase = "host"     // outbound calls into the host
)

// Kind categorizes the error
type Kind string

const (
	KindReinitialization Kind = "reinitialization"
	KindNotInitialized   Kind = "not_initialized"
	KindVersion          Kind = "version"
	KindTypeMismatch     Kind = "type_mismatch"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
	KindDuplicate        Kind = "duplicate"
	KindMissingParent    Kind = "missing_parent"
	KindHasSubclasses    Kind = "has_subclasses"
	KindLifecycle        Kind = "lifecycle"
	KindInvalidInput     Kind = "invalid_input"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindOverflow         Kind = "overflow"
	KindNilPointer       Kind = "nil_pointer"
	KindAllocation       Kind = "allocation"
	KindRegistration     Kind = "registration"
	KindCallFailed       Kind = "call_failed"
)

// Sentinels for errors.Is; matching compares phase and kind only.
var (
	ErrReinitialization = &Error{Phase: PhaseInit, Kind: KindReinitialization}
	ErrNotInitialized   = &Error{Phase: PhaseInit, Kind: KindNotInitialized}
	ErrLifecycle        = &Error{Phase: PhaseBinding, Kind: KindLifecycle}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Member string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" at ")
		b.WriteString(e.Class)
		if e.Member != "" {
			b.WriteByte('.')
			b.WriteString(e.Member)
		}
	} else if e.Member != "" {
		b.WriteString(" at ")
		b.WriteString(e.Member)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the extension class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Member sets the method, property, signal or constant name
func (b *Builder) Member(name string) *Builder {
	b.err.Member = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Reinitialization reports a second load of the interface table
func Reinitialization() *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindReinitialization,
		Detail: "interface table already initialized",
	}
}

// NotInitialized reports use of a component before the table was loaded
func NotInitialized(component string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s used before initialization", component),
	}
}

// TypeMismatch reports a Variant whose kind cannot be converted to the requested one
func TypeMismatch(phase Phase, actual, expected fmt.Stringer) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("cannot convert %s to %s", actual, expected),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Duplicate reports a second registration of the same name
func Duplicate(class, what, name string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicate,
		Class:  class,
		Member: name,
		Detail: fmt.Sprintf("%s already registered", what),
	}
}

// MissingParent reports a class whose parent is unknown to the host
func MissingParent(class, parent string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindMissingParent,
		Class:  class,
		Detail: fmt.Sprintf("parent class %q does not exist", parent),
	}
}

// HasSubclasses reports an unregistration that would orphan registered children
func HasSubclasses(class string, children []string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindHasSubclasses,
		Class:  class,
		Detail: fmt.Sprintf("subclasses still registered: %s", strings.Join(children, ", ")),
		Value:  children,
	}
}

// Lifecycle reports use of a binding after the host released it
func Lifecycle(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseBinding,
		Kind:   KindLifecycle,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// NilPointer reports a null host pointer where one was required
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: fmt.Sprintf("%s is null", what),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration wraps a failure to register a class member
func Registration(class, member string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Class:  class,
		Member: member,
		Detail: "register",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
