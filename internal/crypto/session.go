package crypto

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrKeyMissing = errors.New("encryption key missing")

// Session holds the derived store key in locked memory for the lifetime of an
// unlocked store.
type Session struct {
	mu  sync.RWMutex
	key *memguard.LockedBuffer
}

func NewSession() *Session {
	return &Session{}
}

// Enable installs key as the active store key, replacing and destroying any
// previous one. The caller's slice is wiped; copy it first if it is still
// needed.
func (s *Session) Enable(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && s.key.IsAlive() {
		s.key.Destroy()
	}
	s.key = memguard.NewBufferFromBytes(key)
}

func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && s.key.IsAlive() {
		s.key.Destroy()
	}
	s.key = nil
}

func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil && s.key.IsAlive()
}

// Key returns the active key bytes, valid until Disable or the next Enable.
func (s *Session) Key() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil || !s.key.IsAlive() {
		return nil, ErrKeyMissing
	}
	return s.key.Bytes(), nil
}
