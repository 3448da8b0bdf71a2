// Package scheduler owns the task registry and fires one-shot tasks at their
// scheduled time.
//
// All registry state (tasks, insertion order, the deadline heap) is guarded
// by a single mutex. One dispatcher goroutine sleeps until the earliest
// deadline; each due task runs on its own supervised goroutine so that a
// slow script never delays another task's start.
package scheduler
