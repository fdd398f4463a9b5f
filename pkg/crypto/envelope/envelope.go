/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package envelope seals medical record bodies with a per-record AES-256 key.
//
// Sealed body layout: base64(IV[16] || AES-256-CBC(PKCS#7(plaintext))).
// The key itself is exchanged as standard base64 of 32 random bytes and is
// protected per reader by the trusted agent, never by this package.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// KeySize is the symmetric key size in bytes (AES-256).
	KeySize = 32
	// IVSize is the size of the random IV prefixed to every sealed body.
	IVSize = aes.BlockSize
)

var (
	// ErrDecryption is returned when a sealed body cannot be opened with the given key.
	ErrDecryption = errors.New("envelope: failed to decrypt data")
	// ErrInvalidKey is returned when a key is not base64 of exactly KeySize bytes.
	ErrInvalidKey = errors.New("envelope: invalid symmetric key")
)

//nolint:gochecknoglobals
var randReader io.Reader = rand.Reader

// GenerateKey returns a fresh random 256 bit key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)

	if _, err := io.ReadFull(randReader, key); err != nil {
		return "", errors.Wrap(err, "envelope: generate key")
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext under key. Strings and byte slices are sealed as is,
// any other value is JSON encoded first. Every call draws a new IV, so sealing
// the same input twice yields different output.
func Seal(plaintext interface{}, key string) (string, error) {
	raw, err := serialize(plaintext)
	if err != nil {
		return "", err
	}

	keyBytes, err := decodeKey(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err = io.ReadFull(randReader, iv); err != nil {
		return "", errors.Wrap(err, "envelope: generate iv")
	}

	sealed, err := seal(raw, keyBytes, iv)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed body. When the plaintext is valid JSON the decoded
// value is returned (map[string]interface{}, []interface{}, float64, ...),
// otherwise the plaintext string.
func Open(sealed, key string) (interface{}, error) {
	text, err := OpenString(sealed, key)
	if err != nil {
		return nil, err
	}

	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text, nil
	}

	return v, nil
}

// OpenInto decrypts a sealed body and JSON decodes it into v.
func OpenInto(sealed, key string, v interface{}) error {
	text, err := OpenString(sealed, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errors.Wrapf(ErrDecryption, "plaintext is not the expected JSON document: %v", err)
	}

	return nil
}

// OpenString decrypts a sealed body and returns the UTF-8 plaintext without any parsing.
func OpenString(sealed, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errors.Wrapf(ErrDecryption, "sealed body is not base64: %v", err)
	}

	keyBytes, err := decodeKey(key)
	if err != nil {
		return "", errors.Wrap(ErrDecryption, err.Error())
	}

	if len(data) < IVSize+aes.BlockSize {
		return "", errors.Wrap(ErrDecryption, "sealed body too short")
	}

	plain, err := open(data[IVSize:], keyBytes, data[:IVSize])
	if err != nil {
		return "", err
	}

	if !utf8.Valid(plain) {
		return "", errors.Wrap(ErrDecryption, "plaintext is not valid UTF-8")
	}

	return string(plain), nil
}

func serialize(plaintext interface{}) ([]byte, error) {
	switch p := plaintext.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, errors.Wrap(err, "envelope: serialize plaintext")
		}

		return raw, nil
	}
}

func decodeKey(key string) ([]byte, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "key is not base64: %v", err)
	}

	if len(keyBytes) != KeySize {
		return nil, errors.Wrapf(ErrInvalidKey, "expected %d bytes, got %d", KeySize, len(keyBytes))
	}

	return keyBytes, nil
}

// seal returns IV || ciphertext.
func seal(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	padded := pad(plaintext)

	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)

	return out, nil
}

func open(ciphertext, key, iv []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Wrap(ErrDecryption, "ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return unpad(plain)
}

// pad applies PKCS#7 padding, see https://tools.ietf.org/html/rfc5652#section-6.3.
func pad(data []byte) []byte {
	padding := aes.BlockSize - len(data)%aes.BlockSize

	return append(append(make([]byte, 0, len(data)+padding), data...),
		bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrDecryption, "empty plaintext")
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, errors.Wrap(ErrDecryption, "invalid padding")
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.Wrap(ErrDecryption, "invalid padding")
		}
	}

	return data[:len(data)-padding], nil
}
