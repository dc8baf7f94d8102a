package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/env"
)

// Gateway account passwords are stored AES-GCM encrypted with a key derived
// from APP_KEY. Decryption happens only at request time in the gateway
// client.

var ErrNoAppKey = errors.New("APP_KEY is not configured")

func gcmFromEnv() (cipher.AEAD, error) {
	appKey := env.GetEnv("APP_KEY", "")
	if appKey == "" {
		return nil, ErrNoAppKey
	}
	key := sha256.Sum256([]byte(appKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a plaintext credential for storage.
func Encrypt(plaintext string) (string, error) {
	gcm, err := gcmFromEnv()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored credential.
func Decrypt(encoded string) (string, error) {
	gcm, err := gcmFromEnv()
	if err != nil {
		return "", err
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("invalid credential encoding")
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("credential ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("credential decryption failed")
	}
	return string(plain), nil
}
