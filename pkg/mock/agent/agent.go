/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent provides a websocket agent holding an RSA key pair, speaking
// both the legacy and the tagged protocol. It is useful for testing.
package agent

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/medvault/medvault-go/pkg/common/log"
	"github.com/medvault/medvault-go/pkg/common/model"
	"github.com/medvault/medvault-go/pkg/crypto/envelope"
)

const rsaKeyBits = 2048

var logger = log.New("medvault/mock/agent")

// MockAgent is an in-process stand-in for the desktop agent.
type MockAgent struct {
	// Protocol is "legacy" or "tagged".
	Protocol   string
	PrivateKey *rsa.PrivateKey

	mu     sync.Mutex
	silent bool
	frames []string
}

// New creates an agent with a fresh key pair.
func New(protocol string) (*MockAgent, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, errors.Wrap(err, "generate agent key pair")
	}

	return &MockAgent{Protocol: protocol, PrivateKey: key}, nil
}

// PublicKey returns the base64 SubjectPublicKeyInfo of the agent key.
func (a *MockAgent) PublicKey() string {
	der, err := x509.MarshalPKIXPublicKey(&a.PrivateKey.PublicKey)
	if err != nil {
		panic(err)
	}

	return base64.StdEncoding.EncodeToString(der)
}

// SetSilent makes the agent read requests without answering them.
func (a *MockAgent) SetSilent(silent bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.silent = silent
}

// Frames returns every frame received so far.
func (a *MockAgent) Frames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.frames...)
}

// StartNewMockAgentServer serves the agent over websocket.
func (a *MockAgent) StartNewMockAgentServer() *httptest.Server {
	return httptest.NewServer(a)
}

// WebsocketURL returns the ws:// address of a server started with StartNewMockAgentServer.
func WebsocketURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// WrapKey wraps the base64 symmetric key for publicKey with RSA-OAEP/SHA-256.
func WrapKey(key, publicKey string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", errors.Wrap(err, "decode public key")
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", errors.Wrap(err, "parse public key")
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", errors.New("public key is not RSA")
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", errors.Wrap(err, "decode symmetric key")
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, raw, nil)
	if err != nil {
		return "", errors.Wrap(err, "wrap key")
	}

	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey recovers a symmetric key wrapped for this agent.
func (a *MockAgent) UnwrapKey(wrapped string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return "", errors.Wrap(err, "decode wrapped key")
	}

	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, a.PrivateKey, ct, nil)
	if err != nil {
		return "", errors.Wrap(err, "unwrap key")
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// ServeHTTP accepts a websocket connection and answers requests until it closes.
func (a *MockAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Errorf("accept: %v", err)

		return
	}

	defer func() {
		if err := c.Close(websocket.StatusNormalClosure, "closing the connection"); err != nil &&
			websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Debugf("close: %v", err)
		}
	}()

	c.SetReadLimit(1 << 24)

	ctx := r.Context()
	session := &legacySession{}

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}

		frame := string(data)

		a.mu.Lock()
		a.frames = append(a.frames, frame)
		silent := a.silent
		a.mu.Unlock()

		var out string
		if a.Protocol == "legacy" {
			out = a.handleLegacy(session, frame)
		} else {
			out = a.handleTagged(frame)
		}

		if out == "" || silent {
			continue
		}

		if err := c.Write(ctx, websocket.MessageText, []byte(out)); err != nil {
			logger.Debugf("write: %v", err)

			return
		}
	}
}

type sealedRecord struct {
	ID                   model.ID `json:"id"`
	EncryptedAESKey      string   `json:"encryptedAESKey"`
	EncryptedDescription string   `json:"encryptedDescription"`
}

type decryptedRecord struct {
	ID          model.ID `json:"id"`
	Description string   `json:"description,omitempty"`
	AESKey      string   `json:"aesKey,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (a *MockAgent) decrypt(records []sealedRecord) []decryptedRecord {
	out := make([]decryptedRecord, 0, len(records))

	for _, rec := range records {
		key, err := a.UnwrapKey(rec.EncryptedAESKey)
		if err != nil {
			out = append(out, decryptedRecord{ID: rec.ID, Error: err.Error()})

			continue
		}

		plain, err := envelope.OpenString(rec.EncryptedDescription, key)
		if err != nil {
			out = append(out, decryptedRecord{ID: rec.ID, Error: err.Error()})

			continue
		}

		out = append(out, decryptedRecord{ID: rec.ID, Description: plain, AESKey: key})
	}

	return out
}

func (a *MockAgent) wrapAll(key string, publicKeys []string) ([]string, error) {
	wrapped := make([]string, 0, len(publicKeys))

	for _, pk := range publicKeys {
		w, err := WrapKey(key, pk)
		if err != nil {
			return nil, err
		}

		wrapped = append(wrapped, w)
	}

	return wrapped, nil
}

func (a *MockAgent) rewrap(wrappedKey, publicKey string) (string, error) {
	key, err := a.UnwrapKey(wrappedKey)
	if err != nil {
		return "", err
	}

	return WrapKey(key, publicKey)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return string(b)
}
