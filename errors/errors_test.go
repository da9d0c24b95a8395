package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/gdext-bridge/abi"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseRegister,
				Kind:   KindDuplicate,
				Class:  "Foo",
				Member: "bar",
				Detail: "method already registered",
			},
			contains: []string{"[register]", "duplicate", "Foo.bar", "method already registered"},
		},
		{
			name: "member only",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindNotFound,
				Member: "baz",
			},
			contains: []string{"[call]", "not_found", "at baz"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMarshal,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[marshal]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseHost,
				Kind:   KindAllocation,
				Detail: "heap exhausted",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[host]", "allocation", "heap exhausted", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseRegister,
		Kind:  KindRegistration,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseMarshal,
		Kind:   KindTypeMismatch,
		Detail: "something",
	}

	if !errors.Is(err, &Error{Phase: PhaseMarshal, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseCall, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseMarshal, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
}

func TestSentinels(t *testing.T) {
	if !errors.Is(Reinitialization(), ErrReinitialization) {
		t.Error("Reinitialization should match ErrReinitialization")
	}
	if !errors.Is(NotInitialized("classdb"), ErrNotInitialized) {
		t.Error("NotInitialized should match ErrNotInitialized")
	}
	if !errors.Is(Lifecycle("instance %d released", 7), ErrLifecycle) {
		t.Error("Lifecycle should match ErrLifecycle")
	}

	wrapped := Wrap(PhaseInit, KindVersion, Reinitialization(), "load")
	if !errors.Is(wrapped, ErrReinitialization) {
		t.Error("errors.Is should see through Wrap")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("cause")
	err := New(PhaseRegister, KindMissingParent).
		Class("Foo").
		Member("bar").
		Value(42).
		Cause(cause).
		Detail("value is %d", 42).
		Build()

	if err.Phase != PhaseRegister {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRegister)
	}
	if err.Kind != KindMissingParent {
		t.Errorf("Kind = %v, want %v", err.Kind, KindMissingParent)
	}
	if err.Class != "Foo" || err.Member != "bar" {
		t.Errorf("location = %s.%s, want Foo.bar", err.Class, err.Member)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "value is 42" {
		t.Errorf("Detail = %q, want %q", err.Detail, "value is 42")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"Reinitialization", Reinitialization(), PhaseInit, KindReinitialization},
		{"NotInitialized", NotInitialized("marshaler"), PhaseInit, KindNotInitialized},
		{"TypeMismatch", TypeMismatch(PhaseMarshal, abi.VariantTypeString, abi.VariantTypeInt), PhaseMarshal, KindTypeMismatch},
		{"Unsupported", Unsupported(PhaseMarshal, "chan"), PhaseMarshal, KindUnsupported},
		{"NotFound", NotFound(PhaseCall, "method", "bar"), PhaseCall, KindNotFound},
		{"Duplicate", Duplicate("Foo", "method", "bar"), PhaseRegister, KindDuplicate},
		{"MissingParent", MissingParent("Foo", "Nope"), PhaseRegister, KindMissingParent},
		{"HasSubclasses", HasSubclasses("Foo", []string{"Bar"}), PhaseRegister, KindHasSubclasses},
		{"Lifecycle", Lifecycle("freed"), PhaseBinding, KindLifecycle},
		{"OutOfBounds", OutOfBounds(PhaseMarshal, 10, 5), PhaseMarshal, KindOutOfBounds},
		{"Overflow", Overflow(PhaseMarshal, int64(1<<40), "int32"), PhaseMarshal, KindOverflow},
		{"NilPointer", NilPointer(PhaseHost, "ret"), PhaseHost, KindNilPointer},
		{"AllocationFailed", AllocationFailed(PhaseHost, 1024), PhaseHost, KindAllocation},
		{"InvalidInput", InvalidInput(PhaseRegister, "empty name"), PhaseRegister, KindInvalidInput},
		{"Registration", Registration("Foo", "bar", errors.New("x")), PhaseRegister, KindRegistration},
		{"Wrap", Wrap(PhaseHost, KindCallFailed, errors.New("x"), "call"), PhaseHost, KindCallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestTypeMismatchMessage(t *testing.T) {
	err := TypeMismatch(PhaseMarshal, abi.VariantTypeString, abi.VariantTypeInt)
	if !strings.Contains(err.Error(), "cannot convert String to int") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestHasSubclassesListsChildren(t *testing.T) {
	err := HasSubclasses("Base", []string{"A", "B"})
	if !strings.Contains(err.Error(), "A, B") {
		t.Errorf("message %q should list children", err.Error())
	}
	if err.Class != "Base" {
		t.Errorf("Class = %q, want Base", err.Class)
	}
}
