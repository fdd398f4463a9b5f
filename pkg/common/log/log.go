/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package log provides module scoped, leveled loggers for medvault packages.
//
// Every package declares one logger, e.g. log.New("medvault/agent"). Levels are set per module
// with SetLevel; an empty module name sets the fallback level. Output goes through logrus unless
// a custom provider is installed with Initialize before anything is logged.
package log

import (
	"io"
	"sync"

	"github.com/medvault/medvault-go/pkg/common/log/internal/metadata"
	"github.com/medvault/medvault-go/pkg/common/log/internal/modlog"
	"github.com/medvault/medvault-go/spi/log"
)

const loggerModule = "medvault/log"

// Log is a module logger. The output it writes to is bound on first use.
type Log struct {
	module string
	once   sync.Once
	out    log.Logger
}

// New returns the logger for module.
func New(module string) *Log {
	return &Log{module: module}
}

// Fatalf logs and, with the default output, exits the process.
func (l *Log) Fatalf(msg string, args ...interface{}) {
	l.output().Fatalf(msg, args...)
}

// Panicf logs and, with the default output, panics.
func (l *Log) Panicf(msg string, args ...interface{}) {
	l.output().Panicf(msg, args...)
}

// Debugf logs at DEBUG.
func (l *Log) Debugf(msg string, args ...interface{}) {
	l.output().Debugf(msg, args...)
}

// Infof logs at INFO.
func (l *Log) Infof(msg string, args ...interface{}) {
	l.output().Infof(msg, args...)
}

// Warnf logs at WARNING.
func (l *Log) Warnf(msg string, args ...interface{}) {
	l.output().Warnf(msg, args...)
}

// Errorf logs at ERROR.
func (l *Log) Errorf(msg string, args ...interface{}) {
	l.output().Errorf(msg, args...)
}

func (l *Log) output() log.Logger {
	l.once.Do(func() {
		l.out = resolve(l.module)
	})

	return l.out
}

// SetLevel sets the level of module, INFO when never set.
// An empty module name sets the level for every module without its own setting.
func SetLevel(module string, level log.Level) {
	metadata.SetLevel(module, level)
}

// GetLevel returns the effective level of module.
func GetLevel(module string) log.Level {
	return metadata.GetLevel(module)
}

// IsEnabledFor reports whether module logs messages at level.
func IsEnabledFor(module string, level log.Level) bool {
	return metadata.IsEnabledFor(module, level)
}

// ParseLevel parses a level name such as "debug" or "WARNING".
func ParseLevel(level string) (log.Level, error) {
	return metadata.ParseLevel(level)
}

// SetOutput redirects the default logrus output. Custom providers are not affected.
func SetOutput(w io.Writer) {
	modlog.SetOutput(w)
}

// UseJSONFormat switches the default output to JSON lines.
func UseJSONFormat(enabled bool) {
	modlog.UseJSONFormat(enabled)
}
