// Package userstore is the credential collaborator consumed by the protocol
// dispatcher. The server cares only about the two outcomes below; storage
// and hashing live behind the interface.
package userstore

import (
	"context"
	"errors"
)

var (
	ErrAlreadyExists      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store registers and authenticates users. Passwords are hashed by the
// implementation; plaintext never persists.
type Store interface {
	Register(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) error
}
