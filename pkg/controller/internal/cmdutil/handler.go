/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cmdutil builds the handler values the controller registers.
package cmdutil

import (
	"net/http"

	"github.com/medvault/medvault-go/pkg/controller/command"
)

// HTTPHandler binds an HTTP handler func to a route.
type HTTPHandler struct {
	path   string
	method string
	handle http.HandlerFunc
}

// NewHTTPHandler returns a route for method on path.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{path: path, method: method, handle: handle}
}

// Path of the route.
func (h *HTTPHandler) Path() string { return h.path }

// Method of the route.
func (h *HTTPHandler) Method() string { return h.method }

// Handle returns the handler func.
func (h *HTTPHandler) Handle() http.HandlerFunc { return h.handle }

// CommandHandler binds a command method to its execution func.
type CommandHandler struct {
	name   string
	method string
	exec   command.Exec
}

// NewCommandHandler returns the handler for method of command name.
func NewCommandHandler(name, method string, exec command.Exec) *CommandHandler {
	return &CommandHandler{name: name, method: method, exec: exec}
}

// Name of the command.
func (c *CommandHandler) Name() string { return c.name }

// Method of the command.
func (c *CommandHandler) Method() string { return c.method }

// Handle returns the execution func.
func (c *CommandHandler) Handle() command.Exec { return c.exec }
