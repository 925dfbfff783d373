package manager

import (
	"simple-kv/pkg/locks"
	"simple-kv/pkg/logger"
)

// Coordinator finds deadlocks among the txns of a lock table. It only picks
// victims; aborting them is up to the caller.
type Coordinator struct {
	Table *locks.LockTable
}

func NewCoordinator(table *locks.LockTable) *Coordinator {
	return &Coordinator{Table: table}
}

func (c *Coordinator) WaitsForGraph() *Graph {
	return BuildGraph(c.Table.Snapshot())
}

// DetectDeadlocks returns a txn on a waits-for cycle, or false when there is
// none. Each call breaks at most one cycle: the caller aborts the victim and
// calls again until false is returned.
func (c *Coordinator) DetectDeadlocks() (uint64, bool) {
	victim, ok := c.WaitsForGraph().FindCycle()
	if ok {
		logger.Inst.Debugw("deadlock detected", "victim", victim)
	}
	return victim, ok
}
