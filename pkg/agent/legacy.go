/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Protocol names accepted by NewCodec.
const (
	LegacyProtocol = "legacy"
	TaggedProtocol = "tagged"
)

// Legacy control words and response prefixes.
const (
	cmdGetPublicKey       = "GETPUBLICKEY"
	cmdEncryptAESKey      = "ENCRYPTAESKEY"
	cmdBatchEncryptAESKey = "BATCHENCRYPTAESKEY"

	prefixCert = "CERT:"
	prefixKey  = "KEY:"
	prefixKeys = "KEYS:"

	actionDecrypt = "decrypt"
)

// LegacyCodec speaks the bare control word protocol of the desktop agent.
// Only decrypt requests carry a correlation id on the wire; every other
// response is matched to the oldest pending request of its kind.
type LegacyCodec struct{}

type legacyRewrap struct {
	EncryptedAESKey string `json:"encryptedAESKey"`
	PublicKey       string `json:"publicKey"`
}

type legacyBatchWrap struct {
	AESKey     string   `json:"aesKey"`
	PublicKeys []string `json:"publicKeys"`
}

type legacyDecrypt struct {
	RequestID uint64         `json:"requestId"`
	Action    string         `json:"action"`
	Records   []SealedRecord `json:"records"`
}

type legacyResponse struct {
	RequestID json.RawMessage `json:"requestId"`
	Records   []wireRecord    `json:"records"`
	Results   []wireRecord    `json:"results"`
	Error     string          `json:"error"`
}

// Name implements Codec.
func (LegacyCodec) Name() string {
	return LegacyProtocol
}

// Encode implements Codec.
func (LegacyCodec) Encode(req *Request) ([][]byte, error) {
	switch req.Kind {
	case KindPublicKey:
		return [][]byte{[]byte(cmdGetPublicKey)}, nil
	case KindRewrapKey:
		return commandFrames(cmdEncryptAESKey, legacyRewrap{
			EncryptedAESKey: req.WrappedKey,
			PublicKey:       req.PublicKey,
		})
	case KindWrapKey:
		return commandFrames(cmdBatchEncryptAESKey, legacyBatchWrap{
			AESKey:     req.AESKey,
			PublicKeys: nonNil(req.PublicKeys),
		})
	case KindDecrypt:
		payload, err := json.Marshal(legacyDecrypt{
			RequestID: req.ID,
			Action:    actionDecrypt,
			Records:   req.Records,
		})
		if err != nil {
			return nil, errors.Wrap(err, "marshal decrypt request")
		}

		return [][]byte{payload}, nil
	default:
		return nil, errors.Errorf("unsupported request kind %q", req.Kind)
	}
}

func commandFrames(word string, payload interface{}) ([][]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", word)
	}

	return [][]byte{[]byte(word), body}, nil
}

// Decode implements Codec.
func (LegacyCodec) Decode(frame []byte) (*Response, error) {
	text := string(frame)

	switch {
	case strings.HasPrefix(text, prefixCert):
		return &Response{Kind: KindPublicKey, PublicKey: strings.TrimSpace(text[len(prefixCert):])}, nil
	case strings.HasPrefix(text, prefixKeys):
		var keys []string
		if err := json.Unmarshal([]byte(text[len(prefixKeys):]), &keys); err != nil {
			return nil, errors.Wrapf(ErrProtocol, "invalid %s payload: %v", prefixKeys, err)
		}

		return &Response{Kind: KindWrapKey, WrappedKeys: keys}, nil
	case strings.HasPrefix(text, prefixKey):
		return &Response{Kind: KindRewrapKey, WrappedKey: strings.TrimSpace(text[len(prefixKey):])}, nil
	}

	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.Wrapf(ErrProtocol, "unrecognized frame %q", abbreviate(text))
	}

	var msg legacyResponse
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, errors.Wrapf(ErrProtocol, "invalid JSON frame: %v", err)
	}

	resp := &Response{Kind: KindDecrypt, Err: msg.Error}
	resp.ID, resp.HasID = parseRequestID(msg.RequestID)

	switch {
	case msg.Records != nil:
		resp.Records = decryptedRecords(msg.Records)
	case isWrapResults(msg.Results):
		// batch wrap results in the desktop fallback format
		resp.Kind = KindWrapKey
		resp.WrappedKeys = wrappedKeys(msg.Results)
	case msg.Results != nil:
		resp.Records = decryptedRecords(msg.Results)
	case msg.Error == "":
		return nil, errors.Wrap(ErrProtocol, "JSON frame carries neither records nor results")
	}

	return resp, nil
}

func isWrapResults(items []wireRecord) bool {
	for i := range items {
		if items[i].EncryptedKey != "" {
			return true
		}
	}

	return false
}

func wrappedKeys(items []wireRecord) []string {
	keys := make([]string, 0, len(items))

	for i := range items {
		if items[i].EncryptedKey == "" || (items[i].Success != nil && !*items[i].Success) {
			continue
		}

		keys = append(keys, items[i].EncryptedKey)
	}

	return keys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

func abbreviate(s string) string {
	const limit = 64

	if len(s) <= limit {
		return s
	}

	return s[:limit] + "..."
}
