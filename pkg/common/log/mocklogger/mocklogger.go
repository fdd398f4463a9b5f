/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocklogger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/medvault/medvault-go/spi/log"
)

// MockLogger is a mocked logger that records every line. It is safe for concurrent use.
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

// Fatalf records a CRITICAL line.
func (m *MockLogger) Fatalf(msg string, args ...interface{}) {
	m.record(log.CRITICAL, msg, args...)
}

// Panicf records a CRITICAL line.
func (m *MockLogger) Panicf(msg string, args ...interface{}) {
	m.record(log.CRITICAL, msg, args...)
}

// Debugf records a DEBUG line.
func (m *MockLogger) Debugf(msg string, args ...interface{}) {
	m.record(log.DEBUG, msg, args...)
}

// Infof records an INFO line.
func (m *MockLogger) Infof(msg string, args ...interface{}) {
	m.record(log.INFO, msg, args...)
}

// Warnf records a WARNING line.
func (m *MockLogger) Warnf(msg string, args ...interface{}) {
	m.record(log.WARNING, msg, args...)
}

// Errorf records an ERROR line.
func (m *MockLogger) Errorf(msg string, args ...interface{}) {
	m.record(log.ERROR, msg, args...)
}

// AllLogContents returns every recorded line joined by newlines.
func (m *MockLogger) AllLogContents() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return strings.Join(m.lines, "\n")
}

func (m *MockLogger) record(level log.Level, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = append(m.lines, level.String()+" "+fmt.Sprintf(msg, args...))
}

// Provider is a mock logger provider handing out the same MockLogger for every module.
type Provider struct {
	MockLogger *MockLogger
}

// GetLogger returns the mock logger.
func (p *Provider) GetLogger(string) log.Logger {
	return p.MockLogger
}
