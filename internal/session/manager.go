package session

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMaxSessions = 4096
	defaultSessionTTL  = 2 * time.Hour
)

// Manager is the in-memory registry of live sessions. Sessions are not
// persisted between page reloads; an idle session simply expires out of the
// LRU and its stream subscribers are dropped.
type Manager struct {
	cache *expirable.LRU[string, *Machine]
}

// NewManager creates a session registry with the default capacity and TTL
func NewManager() *Manager {
	return NewManagerWith(defaultMaxSessions, defaultSessionTTL)
}

// NewManagerWith creates a session registry with explicit capacity and TTL
func NewManagerWith(capacity int, ttl time.Duration) *Manager {
	onEvict := func(id string, machine *Machine) {
		machine.Events.Close()
		log.Printf(`{"level":"info","message":"Session evicted","session_id":"%s"}`, id)
	}
	return &Manager{
		cache: expirable.NewLRU[string, *Machine](capacity, onEvict, ttl),
	}
}

// Create starts a new session in the given mode and returns its machine
func (mgr *Manager) Create(userID, originalInput string, mode Mode, language string) (*Machine, error) {
	originalInput = strings.TrimSpace(originalInput)
	if originalInput == "" {
		return nil, fmt.Errorf("session: original input is empty")
	}
	if language == "" {
		language = "en"
	}
	sess := &PromptSession{
		ID:            NewSessionID(),
		UserID:        userID,
		OriginalInput: originalInput,
		Mode:          mode,
		Language:      language,
		CurrentRound:  1,
		CreatedAt:     time.Now().UTC(),
	}
	machine, err := NewMachine(sess)
	if err != nil {
		return nil, err
	}
	mgr.cache.Add(sess.ID, machine)
	return machine, nil
}

// Get returns the machine for a session id
func (mgr *Manager) Get(id string) (*Machine, bool) {
	return mgr.cache.Get(id)
}

// Remove tears a session down explicitly
func (mgr *Manager) Remove(id string) {
	mgr.cache.Remove(id)
}

// Len reports the number of live sessions
func (mgr *Manager) Len() int {
	return mgr.cache.Len()
}
