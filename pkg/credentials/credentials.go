package credentials

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned when an encrypted value is not "ivhex:cipherhex"
var ErrMalformed = errors.New("malformed encrypted credentials")

// Manager handles encryption and decryption of cloud account credentials
type Manager struct {
	encryptionKey []byte // 32 bytes for AES-256
}

// NewManager creates a new manager with the given encryption key.
// The key should be 32 bytes for AES-256-CBC.
func NewManager(key []byte) (*Manager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	return &Manager{
		encryptionKey: key,
	}, nil
}

// NewManagerFromPassword creates a manager using a password.
// The password is hashed with SHA-256 to derive the encryption key.
func NewManagerFromPassword(password string) (*Manager, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	hash := sha256.Sum256([]byte(password))
	return NewManager(hash[:])
}

// Encrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding.
// Returns "ivhex:cipherhex".
func (m *Manager) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("cannot encrypt empty data")
	}

	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt
func (m *Manager) Decrypt(encrypted string) ([]byte, error) {
	ivHex, cipherHex, ok := strings.Cut(strings.TrimSpace(encrypted), ":")
	if !ok || ivHex == "" || cipherHex == "" {
		return nil, ErrMalformed
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: bad iv", ErrMalformed)
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrMalformed)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrMalformed)
	}

	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// AWS holds static access keys for the EC2 provider
type AWS struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// ParseAWS decodes a decrypted credentials document. Both the long
// (accessKeyId, secretAccessKey) and short (accessKey, secretKey) field names
// are accepted.
func ParseAWS(plaintext []byte) (AWS, error) {
	var raw struct {
		AccessKeyID     string `json:"accessKeyId"`
		AccessKey       string `json:"accessKey"`
		SecretAccessKey string `json:"secretAccessKey"`
		SecretKey       string `json:"secretKey"`
		SessionToken    string `json:"sessionToken"`
		Region          string `json:"region"`
	}
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return AWS{}, fmt.Errorf("invalid credentials document: %w", err)
	}

	creds := AWS{
		AccessKeyID:     firstNonEmpty(raw.AccessKeyID, raw.AccessKey),
		SecretAccessKey: firstNonEmpty(raw.SecretAccessKey, raw.SecretKey),
		SessionToken:    raw.SessionToken,
		Region:          raw.Region,
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return AWS{}, errors.New("credentials missing access key id or secret access key")
	}
	return creds, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
