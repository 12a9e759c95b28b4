package keys

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const ratchetMaterialBytes = 32

// KeySet is the content of one ring slot: the ratchet material a key came
// from, the AES key derived from it and the salt the derivation ran with.
// A slot is replaced wholesale, never mutated, so a KeySet read once stays
// consistent.
type KeySet struct {
	Material      []byte
	EncryptionKey []byte
	Salt          []byte
}

// DeriveKeys stretches material into a KeySet with a bits wide encryption
// key. Derivation is PBKDF2-HMAC-SHA256 with 100000 iterations; equal
// inputs always produce the same keys, which is what lets two sides agree
// on a key by exchanging only the material.
func DeriveKeys(material, salt []byte, bits int) *KeySet {
	switch bits {
	case 128, 256:
	default:
		bits = DefaultKeyDeriveBits
	}
	return &KeySet{
		Material:      append([]byte(nil), material...),
		EncryptionKey: pbkdf2.Key(material, salt, pbkdf2Iterations, bits/8, sha256.New),
		Salt:          append([]byte(nil), salt...),
	}
}

// RatchetMaterial advances ratchet material one step. The step is one way,
// so a receiver that caught up cannot recover keys older than what it was
// given.
func RatchetMaterial(material, salt []byte) []byte {
	return pbkdf2.Key(material, salt, pbkdf2Iterations, ratchetMaterialBytes, sha256.New)
}
