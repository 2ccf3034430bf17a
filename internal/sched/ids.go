package sched

import "sync/atomic"

// TaskID, ExecutorID, and InspectorID are process-wide monotonic
// identifiers drawn from independent counters, matching the
// `#[derive(SerialId)]` scheme the original scheduler hangs every id
// type off of.
type (
	TaskID      uint64
	ExecutorID  uint64
	InspectorID uint64
)

var (
	nextTaskID      atomic.Uint64
	nextExecutorID  atomic.Uint64
	nextInspectorID atomic.Uint64
)

func newTaskID() TaskID           { return TaskID(nextTaskID.Add(1)) }
func newExecutorID() ExecutorID   { return ExecutorID(nextExecutorID.Add(1)) }
func newInspectorID() InspectorID { return InspectorID(nextInspectorID.Add(1)) }
