/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"encoding/json"
	"io"

	"github.com/medvault/medvault-go/spi/log"
)

// WriteNillableResponse encodes v into w, or an empty JSON object when v is nil.
// Encoding failures can only be logged since the response may be partially written.
func WriteNillableResponse(w io.Writer, v interface{}, l log.Logger) {
	if v == nil {
		v = struct{}{}
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		l.Errorf("failed to write command response: %s", err)
	}
}
