/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logutil formats controller command log lines as
// command=[..] action=[..] key=[value]... msg=[..].
package logutil

import (
	"fmt"
	"strings"

	"github.com/medvault/medvault-go/spi/log"
)

// LogError logs a failed command action.
func LogError(logger log.Logger, command, action, errMsg string, data ...string) {
	logger.Errorf("%s errMsg=[%s]", prefix(command, action, data), errMsg)
}

// LogDebug logs command action progress.
func LogDebug(logger log.Logger, command, action, msg string, data ...string) {
	logger.Debugf("%s msg=[%s]", prefix(command, action, data), msg)
}

// LogInfo logs a rejected or notable command action.
func LogInfo(logger log.Logger, command, action, msg string, data ...string) {
	logger.Infof("%s msg=[%s]", prefix(command, action, data), msg)
}

// CreateKeyValueString formats one key=[value] pair for the data arguments.
func CreateKeyValueString(key, val string) string {
	return fmt.Sprintf("%s=[%s]", key, val)
}

func prefix(command, action string, data []string) string {
	fields := append([]string{CreateKeyValueString("command", command), CreateKeyValueString("action", action)},
		data...)

	return strings.Join(fields, " ")
}
