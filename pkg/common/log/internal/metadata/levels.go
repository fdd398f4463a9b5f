/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metadata keeps the per module logging levels.
package metadata

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/medvault/medvault-go/spi/log"
)

const (
	defaultLogLevel   = log.INFO
	defaultModuleName = ""
)

//nolint:gochecknoglobals
var (
	rwmutex = &sync.RWMutex{}
	levels  = map[string]log.Level{}
)

// SetLevel sets the log level for given module. An empty module sets the default for all modules.
func SetLevel(module string, level log.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	levels[module] = level
}

// GetLevel returns the log level for given module, falling back to the default module then INFO.
func GetLevel(module string) log.Level {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	return getLevel(module)
}

// IsEnabledFor reports whether logging is enabled for given module and level.
func IsEnabledFor(module string, level log.Level) bool {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	return level <= getLevel(module)
}

// Reset drops every configured level.
func Reset() {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	levels = map[string]log.Level{}
}

func getLevel(module string) log.Level {
	if level, ok := levels[module]; ok {
		return level
	}

	if level, ok := levels[defaultModuleName]; ok {
		return level
	}

	return defaultLogLevel
}

// ParseLevel returns the log level from a string representation. WARN is accepted for WARNING.
func ParseLevel(level string) (log.Level, error) {
	if strings.EqualFold(level, "WARN") {
		return log.WARNING, nil
	}

	for l := log.CRITICAL; l <= log.DEBUG; l++ {
		if strings.EqualFold(l.String(), level) {
			return l, nil
		}
	}

	return log.ERROR, errors.Errorf("logger: invalid log level %q", level)
}
