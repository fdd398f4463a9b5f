/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package command defines the transport independent controller commands: each command reads a
// JSON request, writes a JSON response and reports failures as a coded Error.
package command

import (
	"io"
)

// Exec runs one command: it decodes req and encodes its response into rw.
type Exec func(rw io.Writer, req io.Reader) Error

// Handler names a command so transports can route to it.
type Handler interface {
	// Name is the command group, e.g. "record".
	Name() string
	// Method is the command within the group, e.g. "CreateRecord".
	Method() string
	Handle() Exec
}
