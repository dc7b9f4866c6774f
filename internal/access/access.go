// Package access gates query execution behind revocable, connection-scoped
// keys.
package access

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Key is one revocable query credential. Keys are revoked by flipping the
// active flag, never deleted.
type Key struct {
	Token        string    `yaml:"token" json:"token"`
	Name         string    `yaml:"name" json:"name"`
	ConnectionID string    `yaml:"connection_id" json:"connection_id"`
	Active       bool      `yaml:"active" json:"active"`
	CreatedAt    time.Time `yaml:"created_at" json:"created_at"`
}

// NewKey mints a key with a random token for a connection.
func NewKey(name, connectionID string) *Key {
	return &Key{
		Token:        uuid.NewString(),
		Name:         name,
		ConnectionID: connectionID,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

var (
	// ErrKeyNotFound is returned when the token is unknown.
	ErrKeyNotFound = errors.New("access key not found")
	// ErrKeyRevoked is returned when the key has been deactivated.
	ErrKeyRevoked = errors.New("access key has been revoked")
	// ErrConnectionInactive is returned when the owning connection is
	// deactivated.
	ErrConnectionInactive = errors.New("connection is no longer available")
)

// Store is the lookup surface the gate validates against.
type Store interface {
	KeyByToken(token string) (*Key, bool)
	ConnectionActive(id string) bool
}

// Grant is a successful validation: read-only filter/count access scoped to
// exactly one connection.
type Grant struct {
	Key          *Key
	ConnectionID string
}

// Gate validates access keys and connection activation state.
type Gate struct {
	store Store
}

// NewGate creates a gate over a key store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Validate checks a token and returns a connection-scoped grant.
func (g *Gate) Validate(token string) (*Grant, error) {
	key, ok := g.store.KeyByToken(token)
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !key.Active {
		return nil, ErrKeyRevoked
	}
	if !g.store.ConnectionActive(key.ConnectionID) {
		return nil, ErrConnectionInactive
	}
	return &Grant{Key: key, ConnectionID: key.ConnectionID}, nil
}
