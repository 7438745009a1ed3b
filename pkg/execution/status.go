package execution

// Status is the state of one execution-graph node. Nodes move
// pending -> ready -> running -> {succeeded, cached, failed, skipped}.
type Status string

const (
	// StatusPending indicates the node is waiting on upstream dependencies.
	StatusPending Status = "pending"
	// StatusReady indicates every upstream dependency has reached a terminal
	// success state and the node is queued for a worker.
	StatusReady Status = "ready"
	// StatusRunning indicates a worker is executing the node.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the node executed freshly and succeeded.
	StatusSucceeded Status = "succeeded"
	// StatusCached indicates the node's prior output was reused without
	// running. Cached counts as success for dependency purposes.
	StatusCached Status = "cached"
	// StatusFailed indicates the node's execution raised an error.
	StatusFailed Status = "failed"
	// StatusSkipped indicates an upstream dependency failed or was skipped,
	// so the node was never attempted.
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCached, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the status unlocks downstream dependents.
func (s Status) IsSuccess() bool {
	return s == StatusSucceeded || s == StatusCached
}
