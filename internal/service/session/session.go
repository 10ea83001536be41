// Package session holds the signed-in user for the process.
package session

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// Session implements ports.Authenticator.
type Session struct {
	mu        sync.RWMutex
	userID    string
	logger    *zap.Logger
	listeners []func(userID string, signedIn bool)
}

func New(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{logger: logger}
}

// SignIn switches the session to userID and notifies listeners.
func (s *Session) SignIn(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.ErrNotAuthenticated
	}

	s.mu.Lock()
	previous := s.userID
	s.userID = userID
	listeners := append([]func(string, bool){}, s.listeners...)
	s.mu.Unlock()

	if previous == userID {
		return nil
	}
	if previous != "" {
		for _, fn := range listeners {
			fn(previous, false)
		}
	}
	s.logger.Info("Signed in", zap.String("user_id", userID))
	for _, fn := range listeners {
		fn(userID, true)
	}
	return nil
}

// SignOut clears the session. Listeners cancel background work for the user.
func (s *Session) SignOut() {
	s.mu.Lock()
	previous := s.userID
	s.userID = ""
	listeners := append([]func(string, bool){}, s.listeners...)
	s.mu.Unlock()

	if previous == "" {
		return
	}
	s.logger.Info("Signed out", zap.String("user_id", previous))
	for _, fn := range listeners {
		fn(previous, false)
	}
}

// CurrentUserID returns the signed-in user id.
func (s *Session) CurrentUserID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", models.ErrNotAuthenticated
	}
	return s.userID, nil
}

// OnChange registers fn for sign-in and sign-out events.
func (s *Session) OnChange(fn func(userID string, signedIn bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
