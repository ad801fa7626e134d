package group0

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-metaraft/pkg/features"
	"github.com/dd0wney/cluso-metaraft/pkg/gossip"
	"github.com/dd0wney/cluso-metaraft/pkg/logging"
)

// UpgradePhase tracks progress of the legacy-cluster upgrade. Phases
// advance monotonically and each is persisted before its work is
// considered done, so a crash resumes at the interrupted phase instead
// of restarting or duplicating work.
type UpgradePhase int

const (
	// UpgradeNotStarted means the upgrade has not begun
	UpgradeNotStarted UpgradePhase = iota
	// UpgradeCreatingGroup0 means group 0 is being discovered or created
	UpgradeCreatingGroup0
	// UpgradeMigratingMetadata means group 0 exists and pre-consensus
	// metadata is being converted
	UpgradeMigratingMetadata
	// UpgradeDone means metadata changes now go through group 0
	UpgradeDone
)

func (p UpgradePhase) String() string {
	switch p {
	case UpgradeNotStarted:
		return "not_started"
	case UpgradeCreatingGroup0:
		return "creating_group0"
	case UpgradeMigratingMetadata:
		return "migrating_metadata"
	case UpgradeDone:
		return "done"
	default:
		return "unknown"
	}
}

// ParseUpgradePhase maps a persisted phase string back to its phase.
// An empty or unrecognized value means the upgrade never started.
func ParseUpgradePhase(s string) UpgradePhase {
	switch s {
	case UpgradeCreatingGroup0.String():
		return UpgradeCreatingGroup0
	case UpgradeMigratingMetadata.String():
		return UpgradeMigratingMetadata
	case UpgradeDone.String():
		return UpgradeDone
	default:
		return UpgradeNotStarted
	}
}

// armUpgrade sets up the upgrade trigger for a node recorded as pending
// during setup. A crash mid-upgrade resumes immediately; otherwise the
// upgrade waits for the cluster-wide consensus feature to enable, which
// may be observed on any node's trigger.
func (o *Orchestrator) armUpgrade() {
	phase := ParseUpgradePhase(o.deps.Store.LoadUpgradePhase())
	if phase != UpgradeNotStarted && phase != UpgradeDone {
		o.log.Info("resuming interrupted group 0 upgrade", logging.Phase(phase.String()))
		o.startUpgradeTask()
		return
	}
	if phase == UpgradeDone {
		// Completed earlier; nothing left to drive.
		o.finishUpgrade()
		return
	}

	// RegisterListener fires the callback inline when the feature is
	// already enabled, and the callback takes o.mu, so the registration
	// must happen outside the lock.
	reg := o.deps.Features.RegisterListener(features.FeatureSupportsRaft, func() {
		// Listener callbacks run on the enabling call stack; the upgrade
		// itself is handed to a tracked background task.
		o.startUpgradeTask()
	})

	o.mu.Lock()
	aborted := o.aborted
	o.listener = reg
	o.mu.Unlock()
	if aborted {
		reg.Cancel()
	}
}

func (o *Orchestrator) startUpgradeTask() {
	o.mu.Lock()
	if o.upgradeStarted {
		o.mu.Unlock()
		return
	}
	o.upgradeStarted = true
	o.mu.Unlock()

	if !o.spawn("upgrade", func(ctx context.Context) {
		o.upgradeToGroup0(ctx)
	}) {
		o.mu.Lock()
		o.upgradeStarted = false
		o.mu.Unlock()
	}
}

// upgradeToGroup0 drives the upgrade to completion and releases
// WaitForRaft callers blocked on it
func (o *Orchestrator) upgradeToGroup0(ctx context.Context) error {
	timer := logging.StartTimer(o.log, "group 0 upgrade finished", logging.Operation("upgrade"))
	if err := o.doUpgradeToGroup0(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown during upgrade is expected; the persisted phase
			// resumes it on the next boot.
			o.log.Info("group 0 upgrade interrupted by shutdown")
		} else {
			timer.EndError(err)
		}
		return err
	}
	o.finishUpgrade()
	timer.End()
	return nil
}

// doUpgradeToGroup0 advances UpgradePhase one phase at a time. Each
// phase's work is idempotent, so re-running the phase that was active
// at a crash is safe.
func (o *Orchestrator) doUpgradeToGroup0(ctx context.Context) error {
	phase := ParseUpgradePhase(o.deps.Store.LoadUpgradePhase())

	for phase != UpgradeDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.reg.SetUpgradePhase(float64(phase))

		var next UpgradePhase
		switch phase {
		case UpgradeNotStarted:
			next = UpgradeCreatingGroup0

		case UpgradeCreatingGroup0:
			if err := o.upgradeEstablishGroup0(ctx); err != nil {
				return err
			}
			next = UpgradeMigratingMetadata

		case UpgradeMigratingMetadata:
			if err := o.deps.Migration.MigrateMetadata(ctx); err != nil {
				return fmt.Errorf("metadata migration failed: %w", err)
			}
			next = UpgradeDone
		}

		if err := o.deps.Store.SaveUpgradePhase(next.String()); err != nil {
			return fmt.Errorf("failed to persist upgrade phase: %w", err)
		}
		o.log.Info("group 0 upgrade phase advanced",
			logging.Phase(next.String()))
		phase = next
	}

	o.reg.SetUpgradePhase(float64(UpgradeDone))
	return nil
}

// upgradeEstablishGroup0 brings up the local group 0 server during the
// upgrade: a crash after the join committed but before the phase
// advanced resumes through the persisted group id, everything else goes
// through discovery seeded from live cluster membership. Upgrading
// nodes join directly as voters; the cluster is already fully admitted.
func (o *Orchestrator) upgradeEstablishGroup0(ctx context.Context) error {
	if gid, ok := o.deps.Store.LoadGroup0ID(); ok {
		o.mu.Lock()
		established := o.state.kind == stateEstablished
		o.mu.Unlock()
		if established {
			return nil
		}
		return o.startServerForGroup0(ctx, gid)
	}

	seeds := upgradeSeeds(o.deps.Gossiper.LiveEndpoints())
	return o.joinGroup0(ctx, seeds, nil, true)
}

func upgradeSeeds(endpoints []gossip.Endpoint) []string {
	seeds := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		seeds = append(seeds, ep.Address)
	}
	return seeds
}

// finishUpgrade marks the upgrade complete and unblocks WaitForRaft
func (o *Orchestrator) finishUpgrade() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.upgradePending = false
	if o.upgradeDone != nil {
		select {
		case <-o.upgradeDone:
		default:
			close(o.upgradeDone)
		}
	}
}
