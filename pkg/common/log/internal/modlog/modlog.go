/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package modlog filters log output by module level before it reaches a log.Logger.
package modlog

import (
	"github.com/medvault/medvault-go/pkg/common/log/internal/metadata"
	"github.com/medvault/medvault-go/spi/log"
)

// Filter forwards messages to next when the module level allows them.
// Fatal and panic messages are always forwarded.
type Filter struct {
	next   log.Logger
	module string
}

// NewFilter wraps next for module.
func NewFilter(next log.Logger, module string) *Filter {
	return &Filter{next: next, module: module}
}

// Fatalf forwards unconditionally.
func (f *Filter) Fatalf(format string, args ...interface{}) {
	f.next.Fatalf(format, args...)
}

// Panicf forwards unconditionally.
func (f *Filter) Panicf(format string, args ...interface{}) {
	f.next.Panicf(format, args...)
}

// Debugf forwards when DEBUG is enabled for the module.
func (f *Filter) Debugf(format string, args ...interface{}) {
	f.logf(log.DEBUG, f.next.Debugf, format, args)
}

// Infof forwards when INFO is enabled for the module.
func (f *Filter) Infof(format string, args ...interface{}) {
	f.logf(log.INFO, f.next.Infof, format, args)
}

// Warnf forwards when WARNING is enabled for the module.
func (f *Filter) Warnf(format string, args ...interface{}) {
	f.logf(log.WARNING, f.next.Warnf, format, args)
}

// Errorf forwards when ERROR is enabled for the module.
func (f *Filter) Errorf(format string, args ...interface{}) {
	f.logf(log.ERROR, f.next.Errorf, format, args)
}

func (f *Filter) logf(level log.Level, out func(string, ...interface{}), format string, args []interface{}) {
	if metadata.IsEnabledFor(f.module, level) {
		out(format, args...)
	}
}
