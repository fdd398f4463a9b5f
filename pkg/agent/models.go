/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"errors"

	"github.com/medvault/medvault-go/pkg/common/model"
)

var (
	// ErrConnection is returned when the agent cannot be reached.
	ErrConnection = errors.New("agent connection failed")
	// ErrConnectionClosed is returned for requests still pending when the connection goes away.
	ErrConnectionClosed = errors.New("agent connection closed")
	// ErrTimeout is returned when the agent does not answer a request in time.
	ErrTimeout = errors.New("agent request timed out")
	// ErrProtocol is returned for responses that do not fit the request they answer.
	ErrProtocol = errors.New("agent protocol error")
	// ErrAgent is returned when the agent reports a failure for a request.
	ErrAgent = errors.New("agent reported an error")
	// ErrClientClosed is returned by a client after Close.
	ErrClientClosed = errors.New("agent client closed")
)

// Kind is the operation a request performs.
type Kind string

// Operation kinds. The values double as the "type" of the tagged protocol.
const (
	KindPublicKey Kind = "getPublicKey"
	KindWrapKey   Kind = "wrapKey"
	KindRewrapKey Kind = "rewrapKey"
	KindDecrypt   Kind = "decrypt"
)

// State of the agent connection.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// SealedRecord is a record as handed to the agent for unwrap and decrypt.
type SealedRecord struct {
	ID                   model.ID `json:"id"`
	EncryptedAESKey      string   `json:"encryptedAESKey"`
	EncryptedDescription string   `json:"encryptedDescription"`
}

// DecryptedRecord is one item of a decrypt response.
type DecryptedRecord struct {
	ID model.ID
	// Fields holds the decrypted record content. It is nil when Err is set.
	Fields map[string]interface{}
	// AESKey is the unwrapped symmetric key when the agent returns it.
	AESKey string
	// Err is the per-record failure reported by the agent.
	Err string
}

// Request is an outbound request before encoding.
type Request struct {
	ID   uint64
	Kind Kind

	AESKey     string
	PublicKeys []string

	WrappedKey string
	PublicKey  string

	Records []SealedRecord
}

// Response is a decoded inbound frame.
type Response struct {
	// HasID reports whether the frame carried a correlation id.
	HasID bool
	ID    uint64
	Kind  Kind

	PublicKey   string
	WrappedKeys []string
	WrappedKey  string
	Records     []DecryptedRecord

	// Err is an agent-reported failure of the whole request.
	Err string
}
