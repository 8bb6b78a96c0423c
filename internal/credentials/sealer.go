package credentials

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// AgeSealer seals records to its own X25519 identity.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer parses an AGE-SECRET-KEY-1... identity.
func NewAgeSealer(secretKey string) (*AgeSealer, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(secretKey))
	if err != nil {
		return nil, fmt.Errorf("parse credentials key: %w", err)
	}
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateAgeSealer creates a sealer with a fresh identity.
func GenerateAgeSealer() (*AgeSealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}, nil
}

// SecretKey returns the AGE-SECRET-KEY-1... encoding of the identity.
func (s *AgeSealer) SecretKey() string {
	return s.identity.String()
}

// Seal encrypts plaintext.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := age.Encrypt(&out, s.recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Open decrypts a sealed record.
func (s *AgeSealer) Open(sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), s.identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

var _ Sealer = (*AgeSealer)(nil)
