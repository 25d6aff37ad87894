// Package vault seals platform credentials before they are persisted.
// Ciphertext is base64 so it fits a text column.
package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

var ErrSealedDataInvalid = errors.New("sealed data is invalid")

type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(ciphertext string) ([]byte, error)
}

// NewSealer builds the sealer selected by cipher ("age" or "secretbox").
// An empty age identity produces an ephemeral key, only fit for the memory store.
func NewSealer(cipher, ageIdentity, secretboxKey string) (Sealer, error) {
	switch strings.ToLower(strings.TrimSpace(cipher)) {
	case "", "age":
		if strings.TrimSpace(ageIdentity) == "" {
			identity, err := age.GenerateX25519Identity()
			if err != nil {
				return nil, fmt.Errorf("generating ephemeral age identity: %w", err)
			}
			log.Warn("[Vault] CREDENTIAL_AGE_IDENTITY not set, using an ephemeral key; sealed credentials will not survive a restart")
			return &AgeSealer{identity: identity}, nil
		}
		return NewAgeSealer(ageIdentity)
	case "secretbox":
		return NewSecretboxSealer(secretboxKey)
	default:
		return nil, fmt.Errorf("unknown credential cipher %q", cipher)
	}
}

type AgeSealer struct {
	identity *age.X25519Identity
}

func NewAgeSealer(identity string) (*AgeSealer, error) {
	parsed, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgeSealer{identity: parsed}, nil
}

// GenerateAgeIdentity returns a new X25519 identity and its recipient.
func GenerateAgeIdentity() (identity string, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", err
	}
	return id.String(), id.Recipient().String(), nil
}

func (s *AgeSealer) Seal(plaintext []byte) (string, error) {
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating age writer: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing ciphertext: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *AgeSealer) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %v", ErrSealedDataInvalid, err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedDataInvalid, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading plaintext: %v", ErrSealedDataInvalid, err)
	}
	return plaintext, nil
}

type SecretboxSealer struct {
	key [32]byte
}

// NewSecretboxSealer takes a base64-encoded 32 byte key.
func NewSecretboxSealer(encodedKey string) (*SecretboxSealer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decoding secretbox key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secretbox key must be 32 bytes, got %d", len(raw))
	}
	s := &SecretboxSealer{}
	copy(s.key[:], raw)
	return s, nil
}

func (s *SecretboxSealer) Seal(plaintext []byte) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *SecretboxSealer) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %v", ErrSealedDataInvalid, err)
	}
	if len(raw) < 24+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrSealedDataInvalid)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed", ErrSealedDataInvalid)
	}
	return plaintext, nil
}
