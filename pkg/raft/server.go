// Package raft defines the narrow contracts this subsystem consumes from
// the consensus engine: running servers, the per-node registry that owns
// them, and configuration-change entries. The engine's replication and
// election internals live behind these interfaces.
package raft

import "context"

// Server is a running consensus server for one group.
//
// All methods may suspend on log append/commit and observe ctx
// cancellation. ModifyConfig may return ErrCommitStatusUnknown, in which
// case the entry may have committed despite the error.
type Server interface {
	// ID returns this server's identity
	ID() ServerID

	// Group returns the group this server belongs to
	Group() GroupID

	// ModifyConfig submits configuration-change entries as a single
	// log entry and waits for commit.
	ModifyConfig(ctx context.Context, changes []ConfigChange) error

	// ReadBarrier performs a linearizing read: after it returns, the
	// locally cached configuration reflects everything committed up to
	// the call time.
	ReadBarrier(ctx context.Context) error

	// Configuration returns the locally cached committed configuration
	Configuration() Configuration
}

// Registry owns the running consensus server instances on this node.
// The group 0 server is a singleton; it is created once during bootstrap
// or upgrade and lives for the remainder of the process.
type Registry interface {
	// IsEnabled reports whether the consensus engine is enabled locally
	IsEnabled() bool

	// CreateGroup creates a brand-new group with self as the sole
	// initial member and starts a server for it.
	CreateGroup(ctx context.Context, gid GroupID, self Member) (Server, error)

	// JoinGroup starts a server for an existing group and submits an
	// AddMember entry for self through the current leader.
	JoinGroup(ctx context.Context, gid GroupID, leaderAddr string, self Member) (Server, error)

	// StartServer starts a server for a group this node already joined
	// earlier. Does not submit any configuration entry.
	StartServer(ctx context.Context, gid GroupID, self Member) (Server, error)

	// Group0 returns the running group 0 server
	Group0() (Server, error)
}
