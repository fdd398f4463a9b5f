/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package controller assembles the command and REST handlers of the daemon.
package controller

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medvault/medvault-go/pkg/controller/command"
	recordcmd "github.com/medvault/medvault-go/pkg/controller/command/record"
	"github.com/medvault/medvault-go/pkg/controller/internal/cmdutil"
	"github.com/medvault/medvault-go/pkg/controller/rest"
	recordrest "github.com/medvault/medvault-go/pkg/controller/rest/record"
)

// MetricsPath serves the prometheus metrics when enabled.
const MetricsPath = "/metrics"

type allOpts struct {
	metrics bool
}

// Opt represents a controller option.
type Opt func(opts *allOpts)

// WithMetrics is an option exposing the prometheus metrics endpoint.
func WithMetrics(enabled bool) Opt {
	return func(opts *allOpts) {
		opts.metrics = enabled
	}
}

// Provider supplies the services the controller drives.
type Provider interface {
	RecordService() recordcmd.Service
	Agent() recordcmd.Agent
}

// GetRESTHandlers returns all REST handlers provided by controller.
func GetRESTHandlers(p Provider, opts ...Opt) []rest.Handler {
	restAPIOpts := &allOpts{}
	// Apply options
	for _, opt := range opts {
		opt(restAPIOpts)
	}

	recordOp := recordrest.New(p.RecordService(), p.Agent())

	var allHandlers []rest.Handler
	allHandlers = append(allHandlers, recordOp.GetRESTHandlers()...)

	if restAPIOpts.metrics {
		allHandlers = append(allHandlers,
			cmdutil.NewHTTPHandler(MetricsPath, http.MethodGet, promhttp.Handler().ServeHTTP))
	}

	return allHandlers
}

// GetCommandHandlers returns all command handlers provided by controller.
func GetCommandHandlers(p Provider) []command.Handler {
	return recordcmd.New(p.RecordService(), p.Agent()).GetHandlers()
}
