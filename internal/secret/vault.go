// Package secret encrypts provider credentials before they reach persistent
// storage. Keys are derived per provider: PBKDF2 over a fixed passphrase and
// the provider's 16-byte salt, so ciphertext produced for one provider is
// useless under another provider's derived key even though the passphrase is
// shared.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations matches the historical on-disk format; changing it
	// invalidates every stored credential.
	pbkdf2Iterations = 100_000

	keyLen    = 32 // AES-256
	nonceSize = 12
)

// passphrase is fixed: the store provides tamper resistance and salt
// isolation, not secrecy against an attacker holding the binary.
var passphrase = []byte("parsemux-credential-store-v1")

// Vault derives per-provider keys and performs AES-GCM encryption. Derived
// keys are memoized; PBKDF2 at 100k iterations is too slow to rerun on
// every config load.
type Vault struct {
	keys *gocache.Cache
}

// NewVault creates a vault with an unbounded derived-key cache. One vault is
// constructed per process and injected into the config store.
func NewVault() *Vault {
	return &Vault{
		keys: gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}
}

func (v *Vault) deriveKey(providerID string, salt []byte) []byte {
	if cached, ok := v.keys.Get(providerID); ok {
		if key, ok := cached.([]byte); ok {
			return key
		}
	}
	key := pbkdf2.Key(passphrase, salt, pbkdf2Iterations, keyLen, sha256.New)
	v.keys.Set(providerID, key, gocache.NoExpiration)
	return key
}

// Encrypt seals plaintext under the provider's derived key. The result is
// base64(nonce || ciphertext). Empty plaintext encrypts to the empty string.
func (v *Vault) Encrypt(providerID string, salt []byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.deriveKey(providerID, salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any failure (corrupt data,
// wrong salt, truncated input) returns the empty string: a corrupted stored
// key must not crash config load.
func (v *Vault) Decrypt(providerID string, salt []byte, encoded string) string {
	if encoded == "" {
		return ""
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) < nonceSize {
		return ""
	}

	block, err := aes.NewCipher(v.deriveKey(providerID, salt))
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}

	plaintext, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
