// Package credential seals session tokens so the deletion outbox can hand
// them to the worker without keeping them in clear text.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var (
	ErrInvalidKey = errors.New("credential key must be 32 bytes, hex encoded")
	ErrOpen       = errors.New("credential cannot be opened")
)

// Box seals and opens tokens with a shared secret key. The web server and
// the worker must use the same key.
type Box struct {
	key [KeySize]byte
}

// NewBox parses a hex encoded 32 byte key.
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts token. The random nonce is stored in front of the box.
func (b *Box) Seal(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &b.key), nil
}

// Open reverses Seal. Tampered, truncated or foreign boxes give ErrOpen.
func (b *Box) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}
