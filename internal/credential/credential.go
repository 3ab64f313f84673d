// Package credential seals server secrets at rest and resolves them into SSH auth.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/remote"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "enc:"

var ErrNoSecret = errors.New("credential secret is not configured")

// Provider seals and opens secrets with a key derived from a configured secret.
type Provider struct {
	key []byte
}

// NewProvider derives the sealing key from secret. An empty secret disables sealing;
// stored values are then used verbatim.
func NewProvider(secret string) (*Provider, error) {
	if secret == "" {
		return &Provider{}, nil
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("shipyard server credentials"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Provider{key: key}, nil
}

func (p *Provider) gcm() (cipher.AEAD, error) {
	if p.key == nil {
		return nil, ErrNoSecret
	}
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext. Without a configured secret plaintext is returned unchanged.
func (p *Provider) Seal(plaintext string) (string, error) {
	if plaintext == "" || p.key == nil {
		return plaintext, nil
	}
	gcm, err := p.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (p *Provider) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return value, nil
	}
	gcm, err := p.gcm()
	if err != nil {
		return "", err
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(payload) < gcm.NonceSize() {
		return "", io.ErrUnexpectedEOF
	}
	nonce, ciphertext := payload[:gcm.NonceSize()], payload[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// Resolve builds the SSH credential of server. A private key takes precedence over a
// password.
func (p *Provider) Resolve(_ context.Context, server *entity.Server) (remote.Auth, error) {
	if server.PrivateKeyPath != "" {
		key, err := os.ReadFile(server.PrivateKeyPath)
		if err != nil {
			return remote.Auth{}, fmt.Errorf("read private key: %w", err)
		}
		passphrase, err := p.Open(server.KeyPassphrase)
		if err != nil {
			return remote.Auth{}, err
		}
		return remote.Auth{PrivateKey: key, Passphrase: passphrase}, nil
	}
	if server.Password != "" {
		password, err := p.Open(server.Password)
		if err != nil {
			return remote.Auth{}, err
		}
		return remote.Auth{Password: password}, nil
	}
	return remote.Auth{}, remote.ErrNoCredential
}
