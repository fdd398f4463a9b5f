/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// TaggedCodec frames every message as one JSON envelope carrying its type and requestId.
type TaggedCodec struct{}

type taggedRequest struct {
	Type       Kind           `json:"type"`
	RequestID  uint64         `json:"requestId"`
	AESKey     string         `json:"aesKey,omitempty"`
	PublicKeys []string       `json:"publicKeys,omitempty"`
	WrappedKey string         `json:"wrappedKey,omitempty"`
	PublicKey  string         `json:"publicKey,omitempty"`
	Records    []SealedRecord `json:"records,omitempty"`
}

type taggedResponse struct {
	Type        Kind            `json:"type"`
	RequestID   json.RawMessage `json:"requestId"`
	PublicKey   string          `json:"publicKey"`
	WrappedKeys []string        `json:"wrappedKeys"`
	WrappedKey  string          `json:"wrappedKey"`
	Records     []wireRecord    `json:"records"`
	Error       string          `json:"error"`
}

// Name implements Codec.
func (TaggedCodec) Name() string {
	return TaggedProtocol
}

// Encode implements Codec.
func (TaggedCodec) Encode(req *Request) ([][]byte, error) {
	msg := taggedRequest{Type: req.Kind, RequestID: req.ID}

	switch req.Kind {
	case KindPublicKey:
	case KindWrapKey:
		msg.AESKey = req.AESKey
		msg.PublicKeys = req.PublicKeys
	case KindRewrapKey:
		msg.WrappedKey = req.WrappedKey
		msg.PublicKey = req.PublicKey
	case KindDecrypt:
		msg.Records = req.Records
	default:
		return nil, errors.Errorf("unsupported request kind %q", req.Kind)
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s request", req.Kind)
	}

	return [][]byte{frame}, nil
}

// Decode implements Codec.
func (TaggedCodec) Decode(frame []byte) (*Response, error) {
	var msg taggedResponse
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, errors.Wrapf(ErrProtocol, "invalid tagged frame: %v", err)
	}

	resp := &Response{
		Kind:        msg.Type,
		PublicKey:   msg.PublicKey,
		WrappedKeys: msg.WrappedKeys,
		WrappedKey:  msg.WrappedKey,
		Err:         msg.Error,
	}

	resp.ID, resp.HasID = parseRequestID(msg.RequestID)
	if !resp.HasID {
		return nil, errors.Wrap(ErrProtocol, "tagged frame without requestId")
	}

	if msg.Records != nil {
		resp.Records = decryptedRecords(msg.Records)
	}

	return resp, nil
}
