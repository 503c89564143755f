package userstore

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemoryStore is a map-backed Store for tests and redis-less deployments.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string][]byte)}
}

func (s *MemoryStore) Register(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return ErrAlreadyExists
	}
	s.users[username] = hash
	return nil
}

func (s *MemoryStore) Authenticate(_ context.Context, username, password string) error {
	s.mu.Lock()
	hash, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}
