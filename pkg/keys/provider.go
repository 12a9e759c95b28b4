// Package keys manages the key material of an end to end encrypted
// session: per participant key rings, PBKDF2 based derivation and the
// ratchet that rolls keys forward without a new exchange.
package keys

import (
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/pkg/errors"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

// Provider hands out key handlers to cryptors. GetKey and GetSharedKey
// return nil when no material was installed yet; cryptors treat that as a
// missing key, not an error.
type Provider interface {
	Options() ProviderOptions
	GetKey(participantID string) *ParticipantKeyHandler
	GetSharedKey(participantID string) *ParticipantKeyHandler
}

// sharedKeyHandlerID keys the single ring a shared key provider maintains.
const sharedKeyHandlerID = "shared"

// DefaultKeyProvider is a map backed Provider. Handlers come to life the
// first time material is set for a participant and live for the provider's
// lifetime.
type DefaultKeyProvider struct {
	mu      sync.Mutex
	options ProviderOptions
	keys    map[string]*ParticipantKeyHandler
	logger  log.Logger
}

func NewDefaultKeyProvider(options ProviderOptions) *DefaultKeyProvider {
	return &DefaultKeyProvider{
		options: options.withDefaults(),
		keys:    make(map[string]*ParticipantKeyHandler),
		logger:  utils.NewLogrusLogger(utils.DefaultLogLevel, "KeyProvider", nil),
	}
}

// Options returns the normalized options every handler of this provider
// shares.
func (p *DefaultKeyProvider) Options() ProviderOptions {
	return p.options
}

// GetKey returns the handler of one participant, or nil before any SetKey
// for it.
func (p *DefaultKeyProvider) GetKey(participantID string) *ParticipantKeyHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[participantID]
}

// GetSharedKey returns the handler all participants share, or nil outside
// shared key mode or before any SetSharedKey.
func (p *DefaultKeyProvider) GetSharedKey(participantID string) *ParticipantKeyHandler {
	if !p.options.SharedKey {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[sharedKeyHandlerID]
}

// SetKey installs material for one participant at slot index, creating the
// participant's handler on first use.
func (p *DefaultKeyProvider) SetKey(participantID string, index int, material []byte) error {
	if p.options.SharedKey {
		return errors.New("provider runs in shared key mode, use SetSharedKey")
	}
	return p.handlerFor(participantID).SetKey(material, index)
}

// SetSharedKey installs material for every participant at slot index.
func (p *DefaultKeyProvider) SetSharedKey(index int, material []byte) error {
	if !p.options.SharedKey {
		return errors.New("provider does not run in shared key mode, use SetKey")
	}
	return p.handlerFor(sharedKeyHandlerID).SetKey(material, index)
}

// RatchetKey rolls one participant's slot forward and returns the new
// material.
func (p *DefaultKeyProvider) RatchetKey(participantID string, index int) ([]byte, error) {
	if p.options.SharedKey {
		return nil, errors.New("provider runs in shared key mode, use RatchetSharedKey")
	}
	handler := p.GetKey(participantID)
	if handler == nil {
		return nil, errors.Errorf("no keys for participant %s", participantID)
	}
	return handler.RatchetKey(index)
}

// RatchetSharedKey rolls the shared slot forward and returns the new
// material.
func (p *DefaultKeyProvider) RatchetSharedKey(index int) ([]byte, error) {
	handler := p.GetSharedKey(sharedKeyHandlerID)
	if handler == nil {
		return nil, errors.New("no shared key installed")
	}
	return handler.RatchetKey(index)
}

// ExportKey returns a copy of the material currently in one participant's
// slot, typically to hand a late joiner the post ratchet state.
func (p *DefaultKeyProvider) ExportKey(participantID string, index int) ([]byte, error) {
	if p.options.SharedKey {
		return nil, errors.New("provider runs in shared key mode, use ExportSharedKey")
	}
	handler := p.GetKey(participantID)
	if handler == nil {
		return nil, errors.Errorf("no keys for participant %s", participantID)
	}
	return exportMaterial(handler, index)
}

// ExportSharedKey returns a copy of the material currently in the shared
// slot.
func (p *DefaultKeyProvider) ExportSharedKey(index int) ([]byte, error) {
	handler := p.GetSharedKey(sharedKeyHandlerID)
	if handler == nil {
		return nil, errors.New("no shared key installed")
	}
	return exportMaterial(handler, index)
}

func (p *DefaultKeyProvider) handlerFor(id string) *ParticipantKeyHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	handler, found := p.keys[id]
	if !found {
		handler = NewParticipantKeyHandler(p.options)
		p.keys[id] = handler
		p.logger.Debugf("created key handler for %v", id)
	}
	return handler
}

func exportMaterial(handler *ParticipantKeyHandler, index int) ([]byte, error) {
	keySet := handler.GetKeySet(index)
	if keySet == nil {
		return nil, errors.Errorf("no key material in slot %d", index)
	}
	return append([]byte(nil), keySet.Material...), nil
}
