package app

// StopReason is logged by Stop so an operator can tell why the process exited.
type StopReason string

const (
	StopUnknown     StopReason = "unknown"
	StopSignal      StopReason = "signal"
	StopConsoleExit StopReason = "console_exit"
	StopFatalError  StopReason = "fatal_error"
)
