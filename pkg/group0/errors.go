package group0

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrNotStarted is returned when an operation runs before Start
	ErrNotStarted = errors.New("orchestrator not started")

	// ErrSetupAlreadyRun is returned when SetupGroup0 is called more than
	// once in the same process
	ErrSetupAlreadyRun = errors.New("group 0 setup already ran")

	// ErrSetupNotRun is returned when an operation requires a completed
	// SetupGroup0 call
	ErrSetupNotRun = errors.New("group 0 setup has not run")

	// ErrRaftUnavailable is returned when a membership-mutating operation
	// is attempted before WaitForRaft returned true
	ErrRaftUnavailable = errors.New("raft not available: WaitForRaft has not succeeded")

	// ErrNoIdentity means this node never established a durable identity
	ErrNoIdentity = errors.New("node identity was never established")

	// ErrAborted is returned for operations attempted after Abort
	ErrAborted = errors.New("orchestrator aborted")

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid orchestrator config")
)
