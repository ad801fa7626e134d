package group0

import "sync"

// taskGate tracks background tasks spawned by setup and upgrade flows.
// Closing the gate stops new tasks from entering and waits for the ones
// already inside, so no task outlives the orchestrator.
type taskGate struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// enter registers a task. Returns false if the gate is already closed;
// the caller must not start the task in that case.
func (g *taskGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// leave marks a task finished; pairs with a successful enter
func (g *taskGate) leave() {
	g.wg.Done()
}

// closeAndWait flips the closing flag and blocks until every entered
// task has left. Idempotent.
func (g *taskGate) closeAndWait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}
