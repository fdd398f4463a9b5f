/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/medvault/medvault-go/pkg/common/model"
)

// Codec turns requests into frames and frames into responses.
type Codec interface {
	// Name identifies the protocol, "tagged" or "legacy".
	Name() string
	// Encode returns the frames of one request. They are written back to back.
	Encode(req *Request) ([][]byte, error)
	// Decode parses one inbound frame.
	Decode(frame []byte) (*Response, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", TaggedProtocol:
		return TaggedCodec{}, nil
	case LegacyProtocol:
		return LegacyCodec{}, nil
	default:
		return nil, errors.Errorf("unknown agent protocol %q", name)
	}
}

// wireRecord is a decrypt response item as both protocols send it.
type wireRecord struct {
	ID           model.ID        `json:"id"`
	Description  json.RawMessage `json:"description,omitempty"`
	MedicalData  json.RawMessage `json:"medicalData,omitempty"`
	AESKey       string          `json:"aesKey,omitempty"`
	DecryptedKey string          `json:"decryptedKey,omitempty"`
	Key          string          `json:"key,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Error        string          `json:"error,omitempty"`
	EncryptedKey string          `json:"encryptedKey,omitempty"`
}

func (w *wireRecord) decrypted() DecryptedRecord {
	rec := DecryptedRecord{ID: w.ID, AESKey: firstNonEmpty(w.AESKey, w.DecryptedKey, w.Key)}

	switch {
	case w.Error != "":
		rec.Err = w.Error

		return rec
	case w.Success != nil && !*w.Success:
		rec.Err = "decryption failed"

		return rec
	}

	fields, err := decodeFields(w.Description)
	if err == nil && fields == nil {
		fields, err = decodeFields(w.MedicalData)
	}

	if err != nil {
		rec.Err = err.Error()

		return rec
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}

	rec.Fields = fields

	return rec
}

// decodeFields accepts either a JSON object or a string holding a JSON object.
func decodeFields(raw json.RawMessage) (map[string]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}

		raw = []byte(s)
	}

	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.New("decrypted content is not a JSON object")
	}

	return fields, nil
}

func decryptedRecords(items []wireRecord) []DecryptedRecord {
	out := make([]DecryptedRecord, 0, len(items))
	for i := range items {
		out = append(out, items[i].decrypted())
	}

	return out
}

// parseRequestID reads a correlation id sent either as a number or as a numeric string.
func parseRequestID(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
