package cryptor

// FrameCryptionState reports the health of one direction of a cryptor.
// Observers only hear about transitions; a run of frames with the same
// outcome produces a single notification.
type FrameCryptionState int

const (
	// StateNew is the initial per direction state before any frame was
	// processed.
	StateNew FrameCryptionState = iota
	// StateOk means the last frame encrypted or decrypted cleanly.
	StateOk
	// StateEncryptionFailed means the AEAD refused to seal a frame.
	StateEncryptionFailed
	// StateDecryptionFailed means a frame did not open and the failure
	// tolerance is used up.
	StateDecryptionFailed
	// StateMissingKey means a frame referenced a key slot with no material.
	StateMissingKey
	// StateKeyRatcheted means the receiver caught up with a sender side
	// ratchet while decrypting.
	StateKeyRatcheted
	// StateInternalError means the cryptor was asked to work without a
	// sink to deliver to.
	StateInternalError
)

func (s FrameCryptionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOk:
		return "ok"
	case StateEncryptionFailed:
		return "encryption_failed"
	case StateDecryptionFailed:
		return "decryption_failed"
	case StateMissingKey:
		return "missing_key"
	case StateKeyRatcheted:
		return "key_ratcheted"
	case StateInternalError:
		return "internal_error"
	}
	return "unknown"
}
