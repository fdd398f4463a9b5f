/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-go/pkg/crypto/envelope"
)

func TestMockAgent(t *testing.T) {
	a, err := New("legacy")
	require.NoError(t, err)

	key, err := envelope.GenerateKey()
	require.NoError(t, err)

	t.Run("wrap and unwrap", func(t *testing.T) {
		wrapped, err := WrapKey(key, a.PublicKey())
		require.NoError(t, err)

		unwrapped, err := a.UnwrapKey(wrapped)
		require.NoError(t, err)
		require.Equal(t, key, unwrapped)

		_, err = WrapKey(key, "not base64!")
		require.Error(t, err)

		_, err = a.UnwrapKey("AAAA")
		require.Error(t, err)
	})

	t.Run("legacy session", func(t *testing.T) {
		s := &legacySession{}

		require.Equal(t, "CERT:"+a.PublicKey(), a.handleLegacy(s, "GETPUBLICKEY"))
		require.Empty(t, a.handleLegacy(s, "BATCHENCRYPTAESKEY"))

		out := a.handleLegacy(s, `{"aesKey":"`+key+`","publicKeys":["`+a.PublicKey()+`"]}`)
		require.True(t, strings.HasPrefix(out, "KEYS:"))

		var wrapped []string
		require.NoError(t, json.Unmarshal([]byte(out[len("KEYS:"):]), &wrapped))
		require.Len(t, wrapped, 1)

		sealed, err := envelope.Seal(`{"notes":"ok"}`, key)
		require.NoError(t, err)

		out = a.handleLegacy(s, `{"requestId":3,"action":"decrypt","records":[`+
			`{"id":1,"encryptedAESKey":"`+wrapped[0]+`","encryptedDescription":"`+sealed+`"}]}`)

		var resp struct {
			RequestID int `json:"requestId"`
			Records   []struct {
				ID          int    `json:"id"`
				Description string `json:"description"`
			} `json:"records"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Equal(t, 3, resp.RequestID)
		require.Equal(t, `{"notes":"ok"}`, resp.Records[0].Description)

		require.Empty(t, a.handleLegacy(s, "HELLO"))
	})

	t.Run("tagged errors", func(t *testing.T) {
		out := a.handleTagged(`{"type":"rewrapKey","requestId":4,"wrappedKey":"AAAA","publicKey":"x"}`)
		require.Contains(t, out, `"error"`)
		require.Contains(t, out, `"requestId":4`)

		out = a.handleTagged(`{"type":"explode","requestId":5}`)
		require.Contains(t, out, "unsupported request type")
	})
}
