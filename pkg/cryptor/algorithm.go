package cryptor

// Algorithm selects the AEAD used on frame payloads.
type Algorithm int

const (
	// AlgorithmAesGcm is AES-GCM with a 12 byte IV and a 16 byte tag. The
	// key width, 128 or 256 bit, follows the installed KeySet.
	AlgorithmAesGcm Algorithm = iota
)

// IVSize returns the IV width in bytes, 0 for an algorithm this build does
// not know.
func (a Algorithm) IVSize() int {
	switch a {
	case AlgorithmAesGcm:
		return gcmIVSize
	}
	return 0
}

func (a Algorithm) String() string {
	switch a {
	case AlgorithmAesGcm:
		return "aes-gcm"
	}
	return "unknown"
}
