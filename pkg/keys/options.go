package keys

const (
	// DefaultKeyRingSize is the ring size used when the options leave it 0.
	DefaultKeyRingSize = 16
	// MaxKeyRingSize caps the ring; a key index travels in one byte.
	MaxKeyRingSize = 255
	// DefaultKeyDeriveBits is the AES key width derived from material when
	// the options do not pick one.
	DefaultKeyDeriveBits = 128
)

// ProviderOptions configures a key provider and every handler it creates.
// The values are fixed for the provider's lifetime; both ends of a stream
// must agree on them or nothing decrypts.
type ProviderOptions struct {
	// SharedKey switches the provider to one key ring shared by all
	// participants instead of one ring per participant.
	SharedKey bool `json:"shared_key"`

	// RatchetSalt seasons every PBKDF2 derivation and ratchet step.
	RatchetSalt []byte `json:"ratchet_salt"`

	// UncryptedMagicBytes marks frames that skip decryption: a frame ending
	// in these bytes is delivered as is, minus the marker.
	UncryptedMagicBytes []byte `json:"uncrypted_magic_bytes"`

	// RatchetWindowSize is how many ratchet steps a receiver may try when a
	// frame does not decrypt with the current key. 0 disables recovery.
	RatchetWindowSize int `json:"ratchet_window_size"`

	// FailureTolerance is how many decryption failures are swallowed before
	// the failure is surfaced. Negative means never surface.
	FailureTolerance int `json:"failure_tolerance"`

	// KeyRingSize is the number of key slots per handler, 1..255.
	KeyRingSize int `json:"key_ring_size"`

	// KeyDeriveBits selects 128 or 256 bit AES keys.
	KeyDeriveBits int `json:"key_derive_bits"`

	// DiscardFrameWhenCryptorNotReady drops frames instead of passing them
	// through while a cryptor is disabled or keyless.
	DiscardFrameWhenCryptorNotReady bool `json:"discard_frame_when_cryptor_not_ready"`
}

// DefaultProviderOptions returns the options most deployments start from:
// per participant keys, a 16 slot ring, 128 bit keys, no ratchet recovery
// and failures never surfaced.
func DefaultProviderOptions() ProviderOptions {
	return ProviderOptions{
		RatchetWindowSize: 0,
		FailureTolerance:  -1,
		KeyRingSize:       DefaultKeyRingSize,
		KeyDeriveBits:     DefaultKeyDeriveBits,
	}
}

// withDefaults normalizes the zero values a hand built options literal
// leaves behind.
func (o ProviderOptions) withDefaults() ProviderOptions {
	if o.KeyRingSize <= 0 {
		o.KeyRingSize = DefaultKeyRingSize
	} else if o.KeyRingSize > MaxKeyRingSize {
		o.KeyRingSize = MaxKeyRingSize
	}
	switch o.KeyDeriveBits {
	case 128, 256:
	default:
		o.KeyDeriveBits = DefaultKeyDeriveBits
	}
	return o
}
