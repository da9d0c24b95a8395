package abi

import (
	"encoding/binary"
	"fmt"
)

// CallErrorType is the kind field of CallError.
type CallErrorType int32

const (
	CallOK CallErrorType = iota
	CallErrorInvalidMethod
	CallErrorInvalidArgument
	CallErrorTooManyArguments
	CallErrorTooFewArguments
	CallErrorInstanceIsNull
	CallErrorMethodNotConst
)

func (t CallErrorType) String() string {
	switch t {
	case CallOK:
		return "ok"
	case CallErrorInvalidMethod:
		return "invalid_method"
	case CallErrorInvalidArgument:
		return "invalid_argument"
	case CallErrorTooManyArguments:
		return "too_many_arguments"
	case CallErrorTooFewArguments:
		return "too_few_arguments"
	case CallErrorInstanceIsNull:
		return "instance_is_null"
	case CallErrorMethodNotConst:
		return "method_not_const"
	}
	return fmt.Sprintf("call_error(%d)", int32(t))
}

// CallError is the channel the host reserves for reporting a failed
// variant-call. Argument is the offending argument index; Expected is the
// expected VariantType for InvalidArgument or the expected argument count for
// TooFew/TooManyArguments.
type CallError struct {
	Error    CallErrorType
	Argument int32
	Expected int32
}

// OK reports whether the call succeeded.
func (e CallError) OK() bool { return e.Error == CallOK }

func (e CallError) String() string {
	switch e.Error {
	case CallOK:
		return "ok"
	case CallErrorInvalidArgument:
		return fmt.Sprintf("%s: argument %d, expected %s", e.Error, e.Argument, VariantType(e.Expected))
	case CallErrorTooManyArguments, CallErrorTooFewArguments:
		return fmt.Sprintf("%s: expected %d", e.Error, e.Expected)
	}
	return e.Error.String()
}

// MarshalBinary encodes e in the host layout.
func (e CallError) MarshalBinary() ([]byte, error) {
	b := make([]byte, CallErrorSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(e.Error))
	binary.LittleEndian.PutUint32(b[4:], uint32(e.Argument))
	binary.LittleEndian.PutUint32(b[8:], uint32(e.Expected))
	return b, nil
}

// UnmarshalBinary decodes e from the host layout.
func (e *CallError) UnmarshalBinary(b []byte) error {
	if len(b) < CallErrorSize {
		return fmt.Errorf("call error: need %d bytes, got %d", CallErrorSize, len(b))
	}
	e.Error = CallErrorType(int32(binary.LittleEndian.Uint32(b[0:])))
	e.Argument = int32(binary.LittleEndian.Uint32(b[4:]))
	e.Expected = int32(binary.LittleEndian.Uint32(b[8:]))
	return nil
}
