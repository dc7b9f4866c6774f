// Package state persists connection configurations, their property lists and
// access keys between runs.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veildb/veildb/internal/access"
	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/property"
)

const DefaultPath = "~/.veildb/state.yaml"

// Connection is one configured data source together with everything scoped
// to it: the chosen users table, its property list and its access keys.
type Connection struct {
	Config     config.ConnectionConfig `yaml:"config"`
	UsersTable string                  `yaml:"users_table,omitempty"`
	UserPK     string                  `yaml:"user_pk,omitempty"`
	Properties []property.Spec         `yaml:"properties,omitempty"`
	Keys       []*access.Key           `yaml:"keys,omitempty"`
}

type fileData struct {
	LastUpdated time.Time     `yaml:"last_updated"`
	Connections []*Connection `yaml:"connections,omitempty"`
}

// Store is the on-disk store of connections. Mutations persist immediately.
type Store struct {
	path string

	mu   sync.RWMutex
	data fileData
}

// NotFoundError is returned for an unknown connection or key id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Load reads the store from disk, starting empty when the file is missing.
// Connection passwords may hold ${ENV:...}/${VAULT:...}/${AWS_SM:...} secret
// references; they are resolved here, once, at load.
func Load(path string) (*Store, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}

	for _, c := range s.data.Connections {
		c.Config.Password, err = config.ResolveValue(c.Config.Password)
		if err != nil {
			return nil, fmt.Errorf("connection %q password: %w", c.Config.ID, err)
		}
	}
	return s, nil
}

// save writes the store to disk. Callers hold the write lock.
func (s *Store) save() error {
	s.data.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Connections returns all configured connections in creation order.
func (s *Store) Connections() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, len(s.data.Connections))
	copy(out, s.data.Connections)
	return out
}

// Connection returns the connection with the given id.
func (s *Store) Connection(id string) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

func (s *Store) findLocked(id string) (*Connection, error) {
	for _, c := range s.data.Connections {
		if c.Config.ID == id {
			return c, nil
		}
	}
	return nil, &NotFoundError{Kind: "connection", ID: id}
}

// AddConnection appends a new connection and persists it.
func (s *Store) AddConnection(c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLocked(c.Config.ID); err == nil {
		return fmt.Errorf("connection %q already exists", c.Config.ID)
	}
	s.data.Connections = append(s.data.Connections, c)
	return s.save()
}

// SetActive flips a connection's activation flag.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.findLocked(id)
	if err != nil {
		return err
	}
	c.Config.Active = active
	return s.save()
}

// SetUsersTable records the chosen base table and its primary key.
func (s *Store) SetUsersTable(id, table, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.findLocked(id)
	if err != nil {
		return err
	}
	c.UsersTable = table
	c.UserPK = pk
	return s.save()
}

// SetProperties replaces a connection's ordered property list.
func (s *Store) SetProperties(id string, specs []property.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.findLocked(id)
	if err != nil {
		return err
	}
	c.Properties = specs
	return s.save()
}

// AddKey mints and persists a new access key for a connection.
func (s *Store) AddKey(connectionID, name string) (*access.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.findLocked(connectionID)
	if err != nil {
		return nil, err
	}
	key := access.NewKey(name, connectionID)
	c.Keys = append(c.Keys, key)
	if err := s.save(); err != nil {
		return nil, err
	}
	return key, nil
}

// RevokeKey deactivates a key. Keys are never deleted.
func (s *Store) RevokeKey(connectionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.findLocked(connectionID)
	if err != nil {
		return err
	}
	for _, k := range c.Keys {
		if k.Token == token {
			k.Active = false
			return s.save()
		}
	}
	return &NotFoundError{Kind: "access key", ID: token}
}

// KeyByToken implements access.Store.
func (s *Store) KeyByToken(token string) (*access.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Connections {
		for _, k := range c.Keys {
			if k.Token == token {
				return k, true
			}
		}
	}
	return nil, false
}

// ConnectionActive implements access.Store.
func (s *Store) ConnectionActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.findLocked(id)
	return err == nil && c.Config.Active
}
