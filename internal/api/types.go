package api

import (
	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/property"
	"github.com/veildb/veildb/internal/state"
)

// ConnectionResponse is one configured connection with credentials elided.
type ConnectionResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Database   string `json:"database,omitempty"`
	Path       string `json:"path,omitempty"`
	Active     bool   `json:"active"`
	UsersTable string `json:"users_table,omitempty"`
}

func toConnectionResponse(c *state.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:         c.Config.ID,
		Name:       c.Config.Name,
		Type:       c.Config.Type,
		Host:       c.Config.Host,
		Port:       c.Config.Port,
		Database:   c.Config.Database,
		Path:       c.Config.Path,
		Active:     c.Config.Active,
		UsersTable: c.UsersTable,
	}
}

// AddConnectionRequest is the request body for POST /api/connections.
type AddConnectionRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Path     string `json:"path,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SSL      bool   `json:"ssl,omitempty"`
}

func (r AddConnectionRequest) toConnectionConfig() config.ConnectionConfig {
	return config.ConnectionConfig{
		Name:     r.Name,
		Type:     r.Type,
		Host:     r.Host,
		Port:     r.Port,
		Database: r.Database,
		Path:     r.Path,
		Username: r.Username,
		Password: r.Password,
		SSL:      r.SSL,
	}
}

// SavePropertiesRequest is the request body for PUT properties. The users
// table may be set in the same call.
type SavePropertiesRequest struct {
	UsersTable string          `json:"users_table,omitempty"`
	Properties []property.Spec `json:"properties"`
}

// CreateKeyRequest is the request body for minting an access key.
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateCohortRequest is the request body for POST /api/cohorts.
type CreateCohortRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ConnectionID string `json:"connection_id"`
	Query        string `json:"query"`
	CampaignID   int    `json:"campaign_id,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Public       bool   `json:"public,omitempty"`
}
