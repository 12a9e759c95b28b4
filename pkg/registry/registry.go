// Package registry tracks the live frame cryptors of a session so a host
// can find, rekey and tear them down by participant.
package registry

import (
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/cryptor"
)

// Registry maps participant and track to the cryptor serving that stream.
// One cryptor per (participant, track) pair; registering the same pair
// again replaces the entry without closing the old cryptor.
type Registry interface {
	Add(participantID, trackID string, c *cryptor.FrameCryptor) error
	Remove(participantID, trackID string) error
	RemoveParticipant(participantID string)
	Get(participantID, trackID string) (*cryptor.FrameCryptor, bool)
	HasParticipant(participantID string) bool
	Cryptors(participantID string) []*cryptor.FrameCryptor
	All() []*cryptor.FrameCryptor
	CloseAll()
}
