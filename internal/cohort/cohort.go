// Package cohort maintains persisted membership sets: named groups of
// anonymized records captured by a query and refreshed by combining the
// stored membership with fresh results.
package cohort

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veildb/veildb/internal/query"
)

// Cohort is one persisted membership set. Query holds the filter expression
// that captured it; Members is the combined, deterministic-ordered row set.
type Cohort struct {
	ID           string      `bson:"_id" json:"id"`
	Owner        string      `bson:"owner,omitempty" json:"owner,omitempty"`
	ConnectionID string      `bson:"connection_id" json:"connection_id"`
	CampaignID   int         `bson:"campaign_id,omitempty" json:"campaign_id,omitempty"`
	Name         string      `bson:"name" json:"name"`
	Description  string      `bson:"description,omitempty" json:"description,omitempty"`
	Query        string      `bson:"query" json:"query"`
	Members      []query.Row `bson:"members,omitempty" json:"members,omitempty"`
	Ready        bool        `bson:"ready" json:"ready"`
	Public       bool        `bson:"public" json:"public"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updated_at"`
}

// SystemOwner marks cohorts created by internal tooling; lifecycle callbacks
// skip them.
const SystemOwner = "SYSTEM"

// Store persists cohorts.
type Store interface {
	Insert(ctx context.Context, c *Cohort) error
	Update(ctx context.Context, c *Cohort) error
	Get(ctx context.Context, id string) (*Cohort, error)
	List(ctx context.Context) ([]*Cohort, error)
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// Notifier receives lifecycle callbacks when a cohort is bound to or removed
// from a campaign. Callbacks run synchronously at well-defined points.
type Notifier interface {
	CohortAssigned(ctx context.Context, campaignID int, cohortID string) error
	CohortRemoved(ctx context.Context, campaignID int) error
}

// NopNotifier discards lifecycle callbacks.
type NopNotifier struct{}

func (NopNotifier) CohortAssigned(context.Context, int, string) error { return nil }
func (NopNotifier) CohortRemoved(context.Context, int) error          { return nil }

// RunFilter executes a membership query against the owning connection with
// true ids included.
type RunFilter func(ctx context.Context, expr string) ([]query.Row, error)

// Service owns cohort lifecycle. The production flag gates outbound
// notifications explicitly; it is configuration, not an environment check.
type Service struct {
	store      Store
	notifier   Notifier
	production bool
	logger     *slog.Logger
}

// NewService creates a cohort service.
func NewService(store Store, notifier Notifier, production bool, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, production: production, logger: logger}
}

// Create persists a new cohort and fires the assignment callback.
func (s *Service) Create(ctx context.Context, c *Cohort) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.Insert(ctx, c); err != nil {
		return fmt.Errorf("inserting cohort: %w", err)
	}

	if s.shouldNotify(c) {
		if err := s.notifier.CohortAssigned(ctx, c.CampaignID, c.ID); err != nil {
			s.logger.Error("cohort assignment callback failed", "cohort", c.ID, "error", err)
		}
	}
	return nil
}

// Delete removes a cohort and fires the removal callback.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting cohort: %w", err)
	}

	if s.shouldNotify(c) {
		if err := s.notifier.CohortRemoved(ctx, c.CampaignID); err != nil {
			s.logger.Error("cohort removal callback failed", "cohort", c.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) shouldNotify(c *Cohort) bool {
	return s.production && c.Owner != SystemOwner && c.CampaignID != 0
}

// Get returns one cohort.
func (s *Service) Get(ctx context.Context, id string) (*Cohort, error) {
	return s.store.Get(ctx, id)
}

// List returns all cohorts.
func (s *Service) List(ctx context.Context) ([]*Cohort, error) {
	return s.store.List(ctx)
}

// Refresh re-runs the cohort's query and combines the result with the stored
// membership. The combined set replaces the old one and is persisted.
func (s *Service) Refresh(ctx context.Context, id string, run RunFilter) (*Cohort, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fresh, err := run(ctx, c.Query)
	if err != nil {
		return nil, fmt.Errorf("running cohort query: %w", err)
	}

	c.Members = query.Combine(c.Members, fresh)
	c.Ready = true
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("updating cohort: %w", err)
	}
	return c, nil
}
