// Package codes шифрует и расшифровывает игровые коды для хранения в БД.
package codes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrMalformedPayload возвращается, если зашифрованный код повреждён или зашифрован другим ключом.
var ErrMalformedPayload = errors.New("malformed code payload")

// Cipher выполняет AES-256-GCM шифрование кодов. Nonce хранится в начале payload.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher создаёт Cipher для ключа длиной 32 байта.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt шифрует код.
func (c *Cipher) Encrypt(code string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(code), nil), nil
}

// Decrypt расшифровывает код, полученный из Encrypt.
func (c *Cipher) Decrypt(payload []byte) (string, error) {
	n := c.aead.NonceSize()
	if len(payload) < n+c.aead.Overhead() {
		return "", ErrMalformedPayload
	}

	plain, err := c.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", ErrMalformedPayload
	}
	return string(plain), nil
}
