// Package storage keeps an optional, append-only history of task lifecycle
// events. Scheduling never depends on it: tasks are not restored from it.
package storage
