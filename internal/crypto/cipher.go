// Package crypto provides the passphrase cipher used to store admin credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength     = 32
	keyIterations = 1

	// VerificationFile is written to the cache directory when a passphrase is first chosen.
	VerificationFile = "passphrase_verification"
	verificationText = "Conduit"
)

var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrInvalidPassphrase   = errors.New("invalid passphrase")
)

// Cipher encrypts with AES-256-CTR using a key derived from a passphrase and salt.
type Cipher struct {
	key []byte
}

// NewCipher derives the key with PBKDF2-SHA512. The salt is normally the hostname,
// which binds stored secrets to the machine they were written on.
func NewCipher(passphrase, salt string) *Cipher {
	return &Cipher{
		key: pbkdf2.Key([]byte(passphrase), []byte(salt), keyIterations, keyLength, sha512.New),
	}
}

// NewHostCipher is NewCipher salted with the local hostname.
func NewHostCipher(passphrase string) *Cipher {
	return NewCipher(passphrase, Hostname())
}

// Hostname returns the machine hostname, or "localhost" when it cannot be determined.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// Encrypt returns "hex(iv):hex(ciphertext)" with a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. CTR mode has no authentication, so a wrong key
// yields garbage rather than an error.
func (c *Cipher) Decrypt(text string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(text, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformedCiphertext
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(out, ct)
	return string(out), nil
}

// VerificationPath returns the verification file path inside dir.
func VerificationPath(dir string) string {
	return filepath.Join(dir, VerificationFile)
}

// HasVerification reports whether a passphrase has already been chosen.
func HasVerification(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteVerification stores a known plaintext encrypted with c.
func WriteVerification(path string, c *Cipher) error {
	enc, err := c.Encrypt(verificationText)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(enc), 0600); err != nil {
		return fmt.Errorf("failed to write passphrase verification: %w", err)
	}
	return nil
}

// Verify checks c against the stored verification file.
func Verify(path string, c *Cipher) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read passphrase verification: %w", err)
	}

	plain, err := c.Decrypt(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("passphrase verification file: %w", err)
	}
	if plain != verificationText {
		return ErrInvalidPassphrase
	}
	return nil
}
