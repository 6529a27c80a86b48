// Package secrets decrypts per-user provider credentials stored at rest.
// Ciphertexts are AES-256-CBC with PKCS#7 padding; key, IV and payload are
// all exchanged base64-encoded.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrBadKey is returned when the master key does not decode to 32 bytes.
	ErrBadKey = errors.New("secrets: master key must be 32 bytes when decoded from base64")

	// ErrBadPadding is returned when the plaintext padding is malformed,
	// which usually means the wrong key was used.
	ErrBadPadding = errors.New("secrets: invalid padding")
)

// Decrypt recovers the plaintext secret from base64 ciphertext and IV using
// the base64-encoded 32-byte master key.
func Decrypt(encrypted, iv, masterKey string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return "", fmt.Errorf("secrets: decode master key: %w", err)
	}
	if len(key) != 32 {
		return "", ErrBadKey
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("secrets: decode iv: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secrets: create cipher: %w", err)
	}
	if len(ivBytes) != block.BlockSize() {
		return "", fmt.Errorf("secrets: iv is %d bytes, want %d", len(ivBytes), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return "", fmt.Errorf("secrets: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, ivBytes).CryptBlocks(plaintext, ciphertext)

	unpadded, err := stripPKCS7(plaintext, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func stripPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-pad], nil
}
