/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package rest exposes controller commands over HTTP.
package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/medvault/medvault-go/pkg/common/log"
	"github.com/medvault/medvault-go/pkg/controller/command"
)

var logger = log.New("medvault/rest")

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// StatusFunc picks the HTTP status answered for a command error.
type StatusFunc func(err command.Error) int

// Execute executes given command with args provided and writes error to
// response writer.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	ExecuteWithStatus(exec, rw, req, StatusFor)
}

// ExecuteWithStatus is Execute with a custom error to status mapping.
func ExecuteWithStatus(exec command.Exec, rw http.ResponseWriter, req io.Reader, status StatusFunc) {
	rw.Header().Set("Content-Type", "application/json")

	if err := exec(rw, req); err != nil {
		logger.Debugf("command failed: type=%s code=%d: %s", err.Type(), err.Code(), err)

		SendHTTPStatusError(rw, status(err), err.Code(), err)
	}
}

// StatusFor maps validation errors to 400 and everything else to 500.
func StatusFor(err command.Error) int {
	if err.Type() == command.ValidationError {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// SendError sends command error as http response in generic error format.
func SendError(rw http.ResponseWriter, err command.Error) {
	SendHTTPStatusError(rw, StatusFor(err), err.Code(), err)
}

// SendHTTPStatusError sends given http status code to response with error body.
func SendHTTPStatusError(rw http.ResponseWriter, httpStatus int, code command.Code, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(httpStatus)

	e := json.NewEncoder(rw).Encode(genericErrorBody{
		Code:    code,
		Message: err.Error(),
	})
	if e != nil {
		logger.Errorf("Unable to send error response, %s", e)
	}
}

// genericErrorBody is the body of every error answer.
type genericErrorBody struct {
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}
