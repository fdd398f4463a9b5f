/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"sync"

	"github.com/medvault/medvault-go/pkg/common/log/internal/modlog"
	"github.com/medvault/medvault-go/spi/log"
)

// registry decides, once, where module loggers write: a custom provider or the logrus sink.
type registry struct {
	once   sync.Once
	custom log.LoggerProvider
}

//nolint:gochecknoglobals
var providers registry

// Initialize hands logging over to p. It only takes effect when called before the first
// message is logged; later calls are ignored.
func Initialize(p log.LoggerProvider) {
	installed := false

	providers.once.Do(func() {
		providers.custom = p
		installed = true
	})

	if installed {
		resolve(loggerModule).Debugf("custom logger provider installed")
	}
}

// resolve returns the level-filtered logger for module.
func resolve(module string) log.Logger {
	providers.once.Do(func() {})

	var out log.Logger
	if providers.custom != nil {
		out = providers.custom.GetLogger(module)
	} else {
		out = modlog.NewSink(module)
	}

	return modlog.NewFilter(out, module)
}
