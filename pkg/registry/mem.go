package registry

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/cryptor"
)

// MemoryRegistry is a map backed Registry.
type MemoryRegistry struct {
	mutex        *sync.Mutex
	participants map[string]map[string]*cryptor.FrameCryptor
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		mutex:        new(sync.Mutex),
		participants: make(map[string]map[string]*cryptor.FrameCryptor),
	}
}

func (mr *MemoryRegistry) Add(participantID, trackID string, c *cryptor.FrameCryptor) error {
	if c == nil {
		return errors.New("nil cryptor")
	}
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	tracks, found := mr.participants[participantID]
	if !found {
		tracks = make(map[string]*cryptor.FrameCryptor)
		mr.participants[participantID] = tracks
	}
	tracks[trackID] = c
	return nil
}

func (mr *MemoryRegistry) Remove(participantID, trackID string) error {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	tracks, found := mr.participants[participantID]
	if !found {
		return errors.Errorf("no cryptors for participant %s", participantID)
	}
	if _, found = tracks[trackID]; !found {
		return errors.Errorf("no cryptor for track %s of participant %s", trackID, participantID)
	}
	delete(tracks, trackID)
	if len(tracks) == 0 {
		delete(mr.participants, participantID)
	}
	return nil
}

func (mr *MemoryRegistry) RemoveParticipant(participantID string) {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	delete(mr.participants, participantID)
}

func (mr *MemoryRegistry) Get(participantID, trackID string) (*cryptor.FrameCryptor, bool) {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	c, found := mr.participants[participantID][trackID]
	return c, found
}

func (mr *MemoryRegistry) HasParticipant(participantID string) bool {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	_, found := mr.participants[participantID]
	return found
}

func (mr *MemoryRegistry) Cryptors(participantID string) []*cryptor.FrameCryptor {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	tracks := mr.participants[participantID]
	cryptors := make([]*cryptor.FrameCryptor, 0, len(tracks))
	for _, c := range tracks {
		cryptors = append(cryptors, c)
	}
	return cryptors
}

func (mr *MemoryRegistry) All() []*cryptor.FrameCryptor {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	var cryptors []*cryptor.FrameCryptor
	for _, tracks := range mr.participants {
		for _, c := range tracks {
			cryptors = append(cryptors, c)
		}
	}
	return cryptors
}

// CloseAll closes every registered cryptor and empties the registry.
func (mr *MemoryRegistry) CloseAll() {
	mr.mutex.Lock()
	defer mr.mutex.Unlock()
	for _, tracks := range mr.participants {
		for _, c := range tracks {
			c.Close()
		}
	}
	mr.participants = make(map[string]map[string]*cryptor.FrameCryptor)
}
