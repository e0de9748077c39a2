// Package odicrypt encrypts stored results with AES-GCM using a key derived
// from a passphrase.
package odicrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 4096
	keyLength  = 32
)

var (
	salt  = []byte("odi-invoices/results")
	magic = []byte("ODIC1")

	ErrNotEncrypted = errors.New("data is not encrypted")
	ErrTruncated    = errors.New("encrypted data is truncated")
)

type OdiCrypt struct {
	gcm cipher.AEAD
}

func New(passphrase string) (*OdiCrypt, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is empty")
	}
	dk := pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)
	c, err := aes.NewCipher(dk)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	return &OdiCrypt{gcm: gcm}, nil
}

// IsEncrypted reports whether data carries the encryption header.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Encrypt returns header || nonce || ciphertext.
func (o *OdiCrypt) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, o.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(magic)+len(nonce)+len(plain)+o.gcm.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return o.gcm.Seal(out, nonce, plain, magic), nil
}

func (o *OdiCrypt) Decrypt(data []byte) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, ErrNotEncrypted
	}
	data = data[len(magic):]
	nonceSize := o.gcm.NonceSize()
	if len(data) < nonceSize+o.gcm.Overhead() {
		return nil, ErrTruncated
	}
	return o.gcm.Open(nil, data[:nonceSize], data[nonceSize:], magic)
}
