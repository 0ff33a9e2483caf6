// Package clerr defines the error taxonomy shared by every layer of the
// program build coordinator.
//
// Errors carry a Code identifying the category and, where it applies, the
// device the failure was observed on. Code.Status returns the numeric status
// an API boundary layer reports for the category.
package clerr

import (
	"errors"
	"fmt"
)

// Code categorizes an error.
type Code string

const (
	// CodeSuccess is the zero-failure code used in per-device status arrays.
	CodeSuccess Code = "SUCCESS"

	// InvalidValue indicates a malformed or missing argument, an unsupported
	// query key, or a size mismatch.
	InvalidValue Code = "INVALID_VALUE"

	// InvalidDevice indicates a device not associated with the relevant
	// context or program.
	InvalidDevice Code = "INVALID_DEVICE"

	// InvalidOperation indicates a violated precondition: kernels attached,
	// wrong source kind, inputs not built.
	InvalidOperation Code = "INVALID_OPERATION"

	// InvalidBinary indicates a malformed or device-mismatched binary payload.
	InvalidBinary Code = "INVALID_BINARY"

	// InvalidProgram indicates the wrong kind of program object, or a program
	// that has already been released.
	InvalidProgram Code = "INVALID_PROGRAM"

	// InvalidProgramExecutable indicates that no successful executable exists
	// for any device of the program.
	InvalidProgramExecutable Code = "INVALID_PROGRAM_EXECUTABLE"

	// BuildFailure indicates the backend ran but at least one targeted device
	// failed to build.
	BuildFailure Code = "BUILD_PROGRAM_FAILURE"

	// CompileFailure indicates the backend ran but at least one targeted
	// device failed to compile.
	CompileFailure Code = "COMPILE_PROGRAM_FAILURE"

	// LinkFailure indicates the backend ran but at least one targeted device
	// failed to link.
	LinkFailure Code = "LINK_PROGRAM_FAILURE"
)

var statuses = map[Code]int32{
	CodeSuccess:              0,
	BuildFailure:             -11,
	CompileFailure:           -15,
	LinkFailure:              -17,
	InvalidValue:             -30,
	InvalidDevice:            -33,
	InvalidBinary:            -42,
	InvalidProgram:           -44,
	InvalidProgramExecutable: -45,
	InvalidOperation:         -59,
}

// Status returns the numeric API status for the code.
// Unknown codes map to InvalidValue's status.
func (c Code) Status() int32 {
	if s, ok := statuses[c]; ok {
		return s
	}
	return statuses[InvalidValue]
}

// Error is the error type returned by the coordinator and its collaborators.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed ("build", "import binary", ...).
	Op string

	// Device identifies the affected device, if any.
	Device string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	prefix := string(e.Code)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Device != "" {
		return fmt.Sprintf("%s: %s (device=%s)", prefix, msg, e.Device)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// ForDevice creates an Error scoped to one device.
func ForDevice(code Code, op, dev, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Device: dev, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code from err. Returns CodeSuccess for a nil error
// and InvalidValue for errors that carry no Code.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return InvalidValue
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
