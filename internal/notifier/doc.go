// Package notifier forwards task lifecycle events from the in-process bus to
// NATS so other systems can follow runs without polling.
//
// Events are published as JSON on "<prefix>.<event type>", for example
// "scriptsched.task.finished". Delivery is best-effort: events beyond the
// configured rate, or arriving while the connection is unusable, are dropped
// and counted.
package notifier
