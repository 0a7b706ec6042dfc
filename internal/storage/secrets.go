package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt means a stored secret could not be opened with the current key,
// typically because it was written on another machine.
var ErrDecrypt = errors.New("secret cannot be decrypted")

type sealedSecret struct {
	Ciphertext string `json:"ciphertext"`
}

// SecretBox encrypts values (API keys, webhook secrets) before they reach
// the Store. Entries live under "secrets/<name>".
type SecretBox struct {
	store Store
	aead  cipher.AEAD
}

// NewSecretBox derives a 256-bit key from passphrase.
func NewSecretBox(store Store, passphrase string) (*SecretBox, error) {
	key := sha256.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	return &SecretBox{store: store, aead: aead}, nil
}

// MachinePassphrase identifies the current user on the current host.
// Secrets sealed with it do not travel with a copied state directory.
func MachinePassphrase() string {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return strings.Join([]string{host, user, home}, "|")
}

func (b *SecretBox) Put(ctx context.Context, name, plaintext string) error {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))

	data, err := json.Marshal(sealedSecret{Ciphertext: base64.StdEncoding.EncodeToString(sealed)})
	if err != nil {
		return fmt.Errorf("encoding secret: %w", err)
	}
	return b.store.Save(ctx, secretKey(name), data)
}

// Get returns ErrNotFound when the secret was never stored.
func (b *SecretBox) Get(ctx context.Context, name string) (string, error) {
	data, err := b.store.Load(ctx, secretKey(name))
	if err != nil {
		return "", err
	}

	var s sealedSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}

	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrDecrypt
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], []byte(name))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func (b *SecretBox) Delete(ctx context.Context, name string) error {
	return b.store.Delete(ctx, secretKey(name))
}

func secretKey(name string) string {
	return "secrets/" + name
}
