/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"encoding/json"
)

// legacySession remembers a control word until its payload frame arrives.
type legacySession struct {
	command string
}

type legacyPayload struct {
	AESKey          string         `json:"aesKey"`
	PublicKeys      []string       `json:"publicKeys"`
	EncryptedAESKey string         `json:"encryptedAESKey"`
	PublicKey       string         `json:"publicKey"`
	RequestID       json.Number    `json:"requestId"`
	Action          string         `json:"action"`
	Records         []sealedRecord `json:"records"`
}

func (a *MockAgent) handleLegacy(s *legacySession, frame string) string {
	switch frame {
	case "GETPUBLICKEY":
		return "CERT:" + a.PublicKey()
	case "ENCRYPTAESKEY", "BATCHENCRYPTAESKEY":
		s.command = frame

		return ""
	}

	var p legacyPayload
	if err := json.Unmarshal([]byte(frame), &p); err != nil {
		logger.Warnf("unexpected legacy frame %q", frame)

		return ""
	}

	command := s.command
	s.command = ""

	switch {
	case command == "ENCRYPTAESKEY":
		w, err := a.rewrap(p.EncryptedAESKey, p.PublicKey)
		if err != nil {
			logger.Warnf("rewrap: %v", err)

			return ""
		}

		return "KEY:" + w
	case command == "BATCHENCRYPTAESKEY":
		wrapped, err := a.wrapAll(p.AESKey, p.PublicKeys)
		if err != nil {
			logger.Warnf("batch wrap: %v", err)

			return ""
		}

		return "KEYS:" + mustJSON(wrapped)
	case p.Action == "decrypt":
		return mustJSON(map[string]interface{}{
			"requestId": p.RequestID,
			"records":   a.decrypt(p.Records),
		})
	default:
		logger.Warnf("unexpected legacy frame %q", frame)

		return ""
	}
}

type taggedMessage struct {
	Type        string         `json:"type"`
	RequestID   json.Number    `json:"requestId"`
	AESKey      string         `json:"aesKey,omitempty"`
	PublicKeys  []string       `json:"publicKeys,omitempty"`
	WrappedKey  string         `json:"wrappedKey,omitempty"`
	PublicKey   string         `json:"publicKey,omitempty"`
	WrappedKeys []string       `json:"wrappedKeys,omitempty"`
	Records     []sealedRecord `json:"records,omitempty"`
}

type taggedReply struct {
	Type        string            `json:"type"`
	RequestID   json.Number       `json:"requestId"`
	PublicKey   string            `json:"publicKey,omitempty"`
	WrappedKeys []string          `json:"wrappedKeys,omitempty"`
	WrappedKey  string            `json:"wrappedKey,omitempty"`
	Records     []decryptedRecord `json:"records,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (a *MockAgent) handleTagged(frame string) string {
	var m taggedMessage
	if err := json.Unmarshal([]byte(frame), &m); err != nil {
		logger.Warnf("unexpected tagged frame %q", frame)

		return ""
	}

	out := taggedReply{Type: m.Type, RequestID: m.RequestID}

	var err error

	switch m.Type {
	case "getPublicKey":
		out.PublicKey = a.PublicKey()
	case "wrapKey":
		out.WrappedKeys, err = a.wrapAll(m.AESKey, m.PublicKeys)
	case "rewrapKey":
		out.WrappedKey, err = a.rewrap(m.WrappedKey, m.PublicKey)
	case "decrypt":
		out.Records = a.decrypt(m.Records)
		if out.Records == nil {
			out.Records = []decryptedRecord{}
		}
	default:
		out.Error = "unsupported request type " + m.Type
	}

	if err != nil {
		out.Error = err.Error()
	}

	return mustJSON(out)
}
