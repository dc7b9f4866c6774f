package access

import (
	"errors"
	"testing"
)

// mapStore is an in-memory Store for gate tests.
type mapStore struct {
	keys   map[string]*Key
	active map[string]bool
}

func (s *mapStore) KeyByToken(token string) (*Key, bool) {
	k, ok := s.keys[token]
	return k, ok
}

func (s *mapStore) ConnectionActive(id string) bool {
	return s.active[id]
}

func testGate() (*Gate, *Key, *mapStore) {
	key := NewKey("analytics", "conn-1")
	store := &mapStore{
		keys:   map[string]*Key{key.Token: key},
		active: map[string]bool{"conn-1": true},
	}
	return NewGate(store), key, store
}

func TestValidateGrantsScopedAccess(t *testing.T) {
	gate, key, _ := testGate()

	grant, err := gate.Validate(key.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if grant.ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %q, want conn-1", grant.ConnectionID)
	}
	if grant.Key.Token != key.Token {
		t.Errorf("grant carries wrong key")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	gate, _, _ := testGate()

	_, err := gate.Validate("nope")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestValidateRevokedKey(t *testing.T) {
	gate, key, _ := testGate()
	key.Active = false

	_, err := gate.Validate(key.Token)
	if !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestValidateInactiveConnection(t *testing.T) {
	gate, key, store := testGate()
	store.active["conn-1"] = false

	_, err := gate.Validate(key.Token)
	if !errors.Is(err, ErrConnectionInactive) {
		t.Errorf("expected ErrConnectionInactive, got %v", err)
	}
}

func TestNewKeyTokensAreUnique(t *testing.T) {
	a := NewKey("a", "conn-1")
	b := NewKey("b", "conn-1")
	if a.Token == b.Token {
		t.Error("two keys share a token")
	}
	if !a.Active {
		t.Error("new keys start active")
	}
}
