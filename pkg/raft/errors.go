package raft

import "errors"

var (
	// ErrCommitStatusUnknown means a submitted entry may or may not have
	// committed; the response alone cannot tell. Callers retry only
	// idempotent operations on this outcome.
	ErrCommitStatusUnknown = errors.New("commit status unknown")

	// ErrNotEnabled means the consensus engine is disabled on this node
	ErrNotEnabled = errors.New("consensus engine not enabled")

	// ErrGroupExists is returned when creating a group that already exists
	ErrGroupExists = errors.New("group already exists")

	// ErrGroupNotFound is returned when starting a server for an unknown group
	ErrGroupNotFound = errors.New("group not found")

	// ErrServerNotStarted is returned by Group0 before any server started
	ErrServerNotStarted = errors.New("group 0 server not started")

	// ErrNoLeader means no leader could be reached to forward an entry
	ErrNoLeader = errors.New("no leader available")
)
