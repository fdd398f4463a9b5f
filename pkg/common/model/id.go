/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package model holds small value types shared by the backend client, the agent client and the workflow.
package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ID identifies a user, patient or record. The backend emits numeric ids while
// tests and other backends use strings; both are accepted and numbers are
// written back as numbers so the agent echoes them unchanged.
type ID string

// String returns the textual id.
func (id ID) String() string {
	return string(id)
}

// MarshalJSON writes all-digit ids as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if isNumeric(string(id)) {
		return []byte(id), nil
	}

	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, []byte("null")) {
		*id = ""

		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = ID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrapf(err, "id must be a string or a number, got %s", data)
	}

	*id = ID(n.String())

	return nil
}

func isNumeric(s string) bool {
	if s == "" || len(s) > 15 || (len(s) > 1 && s[0] == '0') {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
