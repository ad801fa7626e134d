package group0

import (
	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// lifecycleKind enumerates the group 0 lifecycle variants
type lifecycleKind int

const (
	stateAbsent lifecycleKind = iota
	stateDiscovering
	stateEstablished
)

func (k lifecycleKind) String() string {
	switch k {
	case stateAbsent:
		return "absent"
	case stateDiscovering:
		return "discovering"
	case stateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// lifecycleState is a tagged union over the group 0 lifecycle. Exactly
// one payload field is meaningful at a time, selected by kind: the
// active discovery session while discovering, the group id once
// established. Transitions go absent -> discovering -> established and
// never backwards; established is persisted, so a restart after
// persistence skips discovery entirely.
type lifecycleState struct {
	kind      lifecycleKind
	discovery *discovery.PersistentDiscovery // kind == stateDiscovering
	groupID   raft.GroupID                   // kind == stateEstablished
}

func absentState() lifecycleState {
	return lifecycleState{kind: stateAbsent}
}

func discoveringState(pd *discovery.PersistentDiscovery) lifecycleState {
	return lifecycleState{kind: stateDiscovering, discovery: pd}
}

func establishedState(gid raft.GroupID) lifecycleState {
	return lifecycleState{kind: stateEstablished, groupID: gid}
}

// MonitoringStatus is a derived observation of the lifecycle plus
// feature enablement, exposed for operational visibility only. It is
// never consulted for decisions.
type MonitoringStatus int

const (
	// StatusDisabled means the consensus engine is off on this node
	StatusDisabled MonitoringStatus = iota
	// StatusNormal means group 0 is established or being established
	StatusNormal
	// StatusAborted means the orchestrator was shut down
	StatusAborted
)

func (s MonitoringStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusNormal:
		return "normal"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
