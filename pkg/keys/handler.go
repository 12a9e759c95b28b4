package keys

import (
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

// ParticipantKeyHandler owns the key ring of one participant: a fixed
// array of slots addressed by the key index that travels in every frame
// trailer. The ring lets a sender switch keys while frames encrypted under
// the previous key are still in flight.
type ParticipantKeyHandler struct {
	mu              sync.Mutex
	cryptoKeyRing   []*KeySet
	currentKeyIndex int

	hasValidKey  *atomic.Bool
	failureCount *atomic.Int32

	options ProviderOptions
	logger  log.Logger
}

func NewParticipantKeyHandler(options ProviderOptions) *ParticipantKeyHandler {
	options = options.withDefaults()
	return &ParticipantKeyHandler{
		cryptoKeyRing: make([]*KeySet, options.KeyRingSize),
		hasValidKey:   atomic.NewBool(false),
		failureCount:  atomic.NewInt32(0),
		options:       options,
		logger:        utils.NewLogrusLogger(utils.DefaultLogLevel, "KeyHandler", nil),
	}
}

// GetKeySet returns the slot at index, or nil when the slot is empty or the
// index falls outside the ring.
func (h *ParticipantKeyHandler) GetKeySet(index int) *KeySet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getKeySetLocked(index)
}

func (h *ParticipantKeyHandler) getKeySetLocked(index int) *KeySet {
	if index < 0 || index >= len(h.cryptoKeyRing) {
		return nil
	}
	return h.cryptoKeyRing[index]
}

// SetKey installs fresh material at index, marks the handler valid again
// and forgets past decryption failures.
func (h *ParticipantKeyHandler) SetKey(material []byte, index int) error {
	if err := h.SetKeyFromMaterial(material, index); err != nil {
		return err
	}
	h.SetHasValidKey()
	return nil
}

// SetKeyFromMaterial installs material at index and makes index current,
// without touching the valid flag or the failure count. Ratchet recovery
// uses it to move keys around while a failure streak is still running.
func (h *ParticipantKeyHandler) SetKeyFromMaterial(material []byte, index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setKeyFromMaterialLocked(material, index)
}

func (h *ParticipantKeyHandler) setKeyFromMaterialLocked(material []byte, index int) error {
	if index < 0 || index >= len(h.cryptoKeyRing) {
		return errors.Errorf("key index %d outside ring of %d", index, len(h.cryptoKeyRing))
	}
	h.currentKeyIndex = index
	h.cryptoKeyRing[index] = DeriveKeys(material, h.options.RatchetSalt, h.options.KeyDeriveBits)
	return nil
}

// RatchetKey advances the material in slot index one step, installs the
// keys derived from it and returns the new material so the caller can hand
// it to receivers out of band.
func (h *ParticipantKeyHandler) RatchetKey(index int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	keySet := h.getKeySetLocked(index)
	if keySet == nil {
		return nil, errors.Errorf("no key material in slot %d", index)
	}
	newMaterial := RatchetMaterial(keySet.Material, h.options.RatchetSalt)
	if err := h.setKeyFromMaterialLocked(newMaterial, index); err != nil {
		return nil, err
	}
	h.logger.Debugf("ratcheted key at index %d", index)
	return newMaterial, nil
}

// CurrentKeyIndex is the slot most recently written.
func (h *ParticipantKeyHandler) CurrentKeyIndex() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentKeyIndex
}

// HasValidKey reports whether the handler believes its current key still
// decrypts. It turns false after too many failures and true again on SetKey
// or a successful ratchet recovery.
func (h *ParticipantKeyHandler) HasValidKey() bool {
	return h.hasValidKey.Load()
}

// SetHasValidKey resets the failure streak and marks the handler valid.
func (h *ParticipantKeyHandler) SetHasValidKey() {
	h.failureCount.Store(0)
	h.hasValidKey.Store(true)
}

// DecryptionFailure counts one failed decryption and reports whether the
// failure should be surfaced. Once the count passes the configured
// tolerance the valid flag drops, which backs decryption off until new
// material arrives. A negative tolerance swallows failures forever.
func (h *ParticipantKeyHandler) DecryptionFailure() bool {
	if h.options.FailureTolerance < 0 {
		return false
	}
	if int(h.failureCount.Inc()) > h.options.FailureTolerance {
		h.hasValidKey.Store(false)
		return true
	}
	return false
}
