package sched

import "testing"

func TestExecutorStepsHighestPriorityFirst(t *testing.T) {
	e := NewExecutor(0)
	var order []string

	e.Spawn(NewFuncTask(1, func() TaskStatus {
		order = append(order, "low")
		return TaskFinished
	}))
	e.Spawn(NewFuncTask(5, func() TaskStatus {
		order = append(order, "high")
		return TaskFinished
	}))

	e.Step()
	e.Step()

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected [high low], got %v", order)
	}
}

func TestExecutorRequeuesPendingTask(t *testing.T) {
	e := NewExecutor(0)
	calls := 0
	e.Spawn(NewFuncTask(1, func() TaskStatus {
		calls++
		if calls < 3 {
			return TaskPending
		}
		return TaskFinished
	}))

	for i := 0; i < 3; i++ {
		if !e.Step() {
			t.Fatalf("Step() reported no work on iteration %d", i)
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
	if e.Step() {
		t.Fatal("Step() should report no work once the task is finished")
	}
}

func TestExecutorFinishedOnlyAfterCloseAndDrain(t *testing.T) {
	e := NewExecutor(0)
	e.Spawn(NewFuncTask(1, func() TaskStatus { return TaskFinished }))

	e.Step()
	if e.IsFinished() {
		t.Fatal("executor should not be finished before Close")
	}

	e.Close()
	if !e.IsFinished() {
		t.Fatal("executor should be finished once closed and empty")
	}
}

func TestExecutorNotFinishedIfTasksRemainAfterClose(t *testing.T) {
	e := NewExecutor(0)
	e.Spawn(NewFuncTask(1, func() TaskStatus { return TaskPending }))
	e.Close()
	e.Step()
	if e.IsFinished() {
		t.Fatal("executor with a still-pending task must not report Finished")
	}
}

func TestExecutorCurrentTaskPriorityDuringPoll(t *testing.T) {
	e := NewExecutor(0)
	var seen uint8
	var ok bool
	e.Spawn(NewFuncTask(7, func() TaskStatus {
		seen, ok = e.CurrentTaskPriority()
		return TaskFinished
	}))
	e.Step()
	if !ok || seen != 7 {
		t.Fatalf("expected (7, true) during poll, got (%d, %v)", seen, ok)
	}
	if _, ok := e.CurrentTaskPriority(); ok {
		t.Fatal("expected no current task priority once Step returns")
	}
}

// BenchmarkExecutorStep measures the C8 step loop's steady-state cost: a
// task that never finishes, so every iteration re-enqueues and re-polls
// it exactly as a long-running cooperative task would.
func BenchmarkExecutorStep(b *testing.B) {
	e := NewExecutor(0)
	e.Spawn(NewFuncTask(1, func() TaskStatus { return TaskPending }))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		e.Step()
	}
}
