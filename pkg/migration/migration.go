// Package migration defines the contracts for the schema/topology
// migration manager and the CDC generation service. Both are wired to
// the group 0 server exactly once, at server creation.
package migration

import (
	"context"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// Manager routes schema and topology changes. Once attached to group 0,
// metadata changes are serialized through the consensus group.
type Manager interface {
	// AttachGroup0 wires change notifications through the given server
	AttachGroup0(ctx context.Context, srv raft.Server) error

	// MigrateMetadata converts pre-consensus metadata state so that
	// subsequent changes go through group 0. Idempotent; used by the
	// upgrade procedure and safe to re-run after a crash.
	MigrateMetadata(ctx context.Context) error
}

// CDCGenerationService manages CDC stream generations. It is attached to
// group 0 so generation switches ride on metadata consensus.
type CDCGenerationService interface {
	AttachGroup0(ctx context.Context, srv raft.Server) error
}

// NopManager is a Manager that records attachment and does nothing else
type NopManager struct {
	Attached bool
	Migrated bool
}

func (m *NopManager) AttachGroup0(ctx context.Context, srv raft.Server) error {
	m.Attached = true
	return nil
}

func (m *NopManager) MigrateMetadata(ctx context.Context) error {
	m.Migrated = true
	return nil
}

// NopCDCService is a CDCGenerationService that records attachment
type NopCDCService struct {
	Attached bool
}

func (c *NopCDCService) AttachGroup0(ctx context.Context, srv raft.Server) error {
	c.Attached = true
	return nil
}
