package session

import (
	"sync"

	"chatsync/internal/models"
)

// Store holds the session of the current user. It is safe for concurrent use;
// readers get copies through Snapshot.
type Store struct {
	mu      sync.RWMutex
	session models.Session
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.session
	if snap.CurrentUser != nil {
		u := *snap.CurrentUser
		snap.CurrentUser = &u
	}
	return snap
}

// Username returns the current user's id, empty when logged out.
func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Username()
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Login populates identity after a successful authentication.
func (s *Store) Login(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := models.NewUser(username)
	s.session.CurrentUser = &user
	s.session.Token = token
	s.session.IsAuthenticated = true
}

func (s *Store) SetConnecting(connecting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.IsConnecting = connecting
	if connecting {
		s.session.LastConnectionError = ""
	}
}

func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.IsConnected = connected
	if connected {
		s.session.IsConnecting = false
		s.session.LastConnectionError = ""
	}
}

func (s *Store) SetInitialized(initialized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.IsInitialized = initialized
}

// SetConnectionError records a terminal failure of a chat connect attempt.
func (s *Store) SetConnectionError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.LastConnectionError = msg
	s.session.IsConnecting = false
	s.session.IsConnected = false
}

func (s *Store) SetPresenceConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.PresenceConnected = connected
}

// Reset tears the session down to its startup state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = models.Session{}
}
