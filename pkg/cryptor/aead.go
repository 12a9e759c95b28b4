package cryptor

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16
)

var (
	// ErrInvalidKeySize is returned when a key is not 16 or 32 bytes.
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrInvalidIVSize is returned when an IV is not 12 bytes.
	ErrInvalidIVSize = errors.New("invalid iv size")
	// ErrDataTooSmall is returned on decrypt when the input cannot even
	// hold the authentication tag.
	ErrDataTooSmall = errors.New("data too small")
)

func newAesGcm(key []byte) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 32:
	default:
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// AesGcmEncrypt seals plaintext under key and iv and returns ciphertext
// with the 16 byte tag appended. aad is authenticated but not encrypted;
// flipping one aad bit on the way makes the matching decrypt fail.
func AesGcmEncrypt(key, iv, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAesGcm(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, ErrInvalidIVSize
	}
	return aead.Seal(nil, iv, plaintext, aad), nil
}

// AesGcmDecrypt opens data sealed by AesGcmEncrypt, ciphertext plus
// trailing tag, and returns the plaintext.
func AesGcmDecrypt(key, iv, aad, data []byte) ([]byte, error) {
	aead, err := newAesGcm(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, ErrInvalidIVSize
	}
	if len(data) < gcmTagSize {
		return nil, ErrDataTooSmall
	}
	return aead.Open(nil, iv, data, aad)
}
