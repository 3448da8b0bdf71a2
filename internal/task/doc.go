// Package task holds the scheduled-task entity: identity, the status state
// machine and the opaque cancellation handle.
//
// Task methods do no locking of their own. The scheduler owns every Task and
// calls these methods with its registry lock held; callers outside the
// scheduler only ever see Snapshot values.
package task
