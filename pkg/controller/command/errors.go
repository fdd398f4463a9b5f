/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

// Type tells whether a command rejected its input or failed while running.
type Type int32

const (
	// ValidationError means the request was refused before any work was done.
	ValidationError Type = iota

	// ExecuteError means the command failed while calling its service.
	ExecuteError
)

func (t Type) String() string {
	switch t {
	case ValidationError:
		return "validation"
	case ExecuteError:
		return "execute"
	default:
		return "unknown"
	}
}

// Code identifies a command failure. Codes are allocated in blocks, one Group per command set.
type Code int32

// UnknownStatus is the code of failures no command claimed.
const UnknownStatus Code = 0

// Group is the first code of a block of one thousand codes.
type Group int32

const (
	// Common codes are shared by every command set.
	Common Group = 1000

	// Record codes belong to the medical record commands.
	Record Group = 2000

	// Agent codes belong to the local agent commands.
	Agent Group = 3000
)

// Error is returned by every Exec; nil means success.
type Error interface {
	error
	Code() Code
	Type() Type
}

// NewValidationError reports a rejected request.
func NewValidationError(code Code, err error) Error {
	return &commandError{cause: err, code: code, errType: ValidationError}
}

// NewExecuteError reports a failure while running the command.
func NewExecuteError(code Code, err error) Error {
	return &commandError{cause: err, code: code, errType: ExecuteError}
}

type commandError struct {
	cause   error
	code    Code
	errType Type
}

func (c *commandError) Error() string {
	return c.cause.Error()
}

func (c *commandError) Code() Code {
	return c.code
}

func (c *commandError) Type() Type {
	return c.errType
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (c *commandError) Unwrap() error {
	return c.cause
}
