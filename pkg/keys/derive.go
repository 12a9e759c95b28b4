package keys

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	derivedKeyBytes  = 16
	hkdfInfoBytes    = 128
)

var (
	ErrEmptySecret = errors.New("keys: empty secret")
	ErrEmptySalt   = errors.New("keys: empty salt")
)

// DeriveKeyFromString turns a passphrase into 16 bytes of key material with
// PBKDF2-HMAC-SHA256, the way browser side SDKs do it, so both ends can
// start from the same passphrase.
func DeriveKeyFromString(password, salt string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptySecret
	}
	if salt == "" {
		return nil, ErrEmptySalt
	}
	return pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, derivedKeyBytes, sha256.New), nil
}

// DeriveKeyFromBytes stretches a raw secret into 16 bytes of key material
// with HKDF-SHA256. The 128 zero bytes of info match what WebCrypto emits
// for an empty info parameter.
func DeriveKeyFromBytes(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	info := make([]byte, hkdfInfoBytes)
	key := make([]byte, derivedKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, errors.Wrap(err, "expand key material")
	}
	return key, nil
}
