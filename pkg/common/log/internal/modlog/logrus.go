/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package modlog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

const moduleField = "module"

//nolint:gochecknoglobals
var (
	rootOnce sync.Once
	root     *logrus.Logger
)

// Root returns the logrus logger shared by every Sink.
// Level filtering is done by Filter, so the root logger accepts everything.
func Root() *logrus.Logger {
	rootOnce.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stdout)
		root.SetLevel(logrus.DebugLevel)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	})

	return root
}

// SetOutput sets the output destination of the shared logger.
func SetOutput(w io.Writer) {
	Root().SetOutput(w)
}

// UseJSONFormat switches the shared logger between JSON and plain text lines.
func UseJSONFormat(enabled bool) {
	if enabled {
		Root().SetFormatter(&logrus.JSONFormatter{})

		return
	}

	Root().SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
}

// NewSink returns the default output for module: the shared logrus logger tagged with the module.
func NewSink(module string) *Sink {
	return &Sink{entry: Root().WithField(moduleField, module)}
}

// Sink writes every message it receives through logrus.
type Sink struct {
	entry *logrus.Entry
}

// Fatalf logs at fatal level then exits the process.
func (l *Sink) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// Panicf logs at panic level then panics.
func (l *Sink) Panicf(format string, args ...interface{}) {
	l.entry.Panicf(format, args...)
}

// Debugf logs verbose messages.
func (l *Sink) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Infof logs general information messages.
func (l *Sink) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warnf logs possible errors.
func (l *Sink) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Errorf logs errors.
func (l *Sink) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
