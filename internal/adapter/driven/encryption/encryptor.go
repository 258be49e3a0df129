// Package encryption implements envelope encryption of access tokens:
// AES-256-CBC for confidentiality and HMAC-SHA256 for integrity, both keys
// derived from one master secret.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Encryptor)(nil)

const (
	ivSize  = aes.BlockSize
	tagSize = sha256.Size
)

// Encryptor encrypts and authenticates short secrets. It is safe for
// concurrent use.
type Encryptor struct {
	encKey []byte
	macKey []byte
	rand   io.Reader
}

// NewEncryptor derives the encryption and HMAC sub-keys from masterKey.
// An empty master key is a configuration error.
func NewEncryptor(masterKey string) (*Encryptor, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("%w: master encryption key not set (NOTIONVAULT_MASTER_KEY)", model.ErrConfiguration)
	}

	return &Encryptor{
		encKey: deriveKey(masterKey, "encryption"),
		macKey: deriveKey(masterKey, "hmac"),
		rand:   rand.Reader,
	}, nil
}

func deriveKey(masterKey, purpose string) []byte {
	sum := sha256.Sum256([]byte(masterKey + purpose))
	return sum[:]
}

// Encrypt returns base64(iv || ciphertext || tag). A fresh IV is drawn for
// every call, so equal plaintexts never produce equal blobs.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.encKey)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return "", fmt.Errorf("rand iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, ivSize+len(ciphertext)+tagSize)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, e.tag(iv, ciphertext)...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt verifies the tag of a blob produced by Encrypt and returns the
// plaintext. The tag is checked before any decryption is attempted.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", model.ErrMalformedCiphertext, err)
	}
	if len(data) < ivSize+aes.BlockSize+tagSize {
		return "", fmt.Errorf("%w: %d bytes is too short", model.ErrMalformedCiphertext, len(data))
	}

	iv := data[:ivSize]
	ciphertext := data[ivSize : len(data)-tagSize]
	tag := data[len(data)-tagSize:]

	if !hmac.Equal(tag, e.tag(iv, ciphertext)) {
		return "", model.ErrIntegrity
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", model.ErrMalformedCiphertext)
	}

	block, err := aes.NewCipher(e.encKey)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (e *Encryptor) tag(iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, e.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", model.ErrMalformedCiphertext)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", model.ErrMalformedCiphertext)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", model.ErrMalformedCiphertext)
		}
	}
	return data[:len(data)-n], nil
}
