// Package security provides encryption for the broker auth token at rest.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	apperrors "signal-trader/internal/errors"
)

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// SaltSize is the size of the salt for key derivation.
	SaltSize = 16
	// NonceSize is the size of the GCM nonce.
	NonceSize = 12
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

// tokenFileName is the encrypted token's filename under the config dir.
const tokenFileName = "token.enc"

// encryptedToken is the on-disk shape of an encrypted auth token.
type encryptedToken struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Version    int    `json:"version"`
}

// TokenStore encrypts the broker access token before it touches disk and
// decrypts it on load. The key is derived per write from a passphrase and
// a fresh salt.
type TokenStore struct {
	configDir string
}

// NewTokenStore creates a token store rooted at configDir.
func NewTokenStore(configDir string) *TokenStore {
	return &TokenStore{configDir: configDir}
}

// Save encrypts the token with the passphrase and writes it with 0600
// permissions.
func (ts *TokenStore) Save(token, passphrase string) error {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return apperrors.NewSecurityError("save_token", "generating salt", err)
	}

	key := deriveKey(passphrase, salt)
	nonce, ciphertext, err := encrypt([]byte(token), key)
	if err != nil {
		return apperrors.NewSecurityError("save_token", "encrypting token", err)
	}

	enc := &encryptedToken{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Version:    1,
	}

	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return apperrors.NewSecurityError("save_token", "serializing token", err)
	}

	if err := os.MkdirAll(ts.configDir, 0700); err != nil {
		return apperrors.NewSecurityError("save_token", "creating config directory", err)
	}
	if err := os.WriteFile(ts.path(), data, 0600); err != nil {
		return apperrors.NewSecurityError("save_token", "writing token file", err)
	}
	return nil
}

// Load reads and decrypts the stored token. A wrong passphrase surfaces
// as a decryption failure; GCM authenticates the ciphertext.
func (ts *TokenStore) Load(passphrase string) (string, error) {
	data, err := os.ReadFile(ts.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Wrap(apperrors.ErrCredentialAccess, "no stored token")
		}
		return "", apperrors.NewSecurityError("load_token", "reading token file", err)
	}

	enc := &encryptedToken{}
	if err := json.Unmarshal(data, enc); err != nil {
		return "", apperrors.NewSecurityError("load_token", "parsing token file", err)
	}

	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return "", apperrors.NewSecurityError("load_token", "decoding salt", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.Nonce)
	if err != nil {
		return "", apperrors.NewSecurityError("load_token", "decoding nonce", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return "", apperrors.NewSecurityError("load_token", "decoding ciphertext", err)
	}

	key := deriveKey(passphrase, salt)
	plaintext, err := decrypt(ciphertext, key, nonce)
	if err != nil {
		return "", apperrors.NewSecurityError("load_token", "invalid passphrase or corrupted token", err)
	}

	return string(plaintext), nil
}

// Delete removes the stored token.
func (ts *TokenStore) Delete() error {
	err := os.Remove(ts.path())
	if err != nil && !os.IsNotExist(err) {
		return apperrors.NewSecurityError("delete_token", "removing token file", err)
	}
	return nil
}

func (ts *TokenStore) path() string {
	return filepath.Join(ts.configDir, tokenFileName)
}

// deriveKey derives an encryption key from a passphrase using PBKDF2.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

// encrypt encrypts plaintext using AES-256-GCM.
func encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// decrypt decrypts ciphertext using AES-256-GCM.
func decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	return plaintext, nil
}
