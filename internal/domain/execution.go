package domain

import "time"

// ExecutionRequest describes one sandbox invocation. It is immutable once
// built: NewExecutionRequest clamps the requested ceilings against the tier
// and global limits, so the sandbox never consults the tier again.
type ExecutionRequest struct {
	Input         []byte
	EntryPoint    string
	MemoryLimitMB int
	Timeout       time.Duration
}

// DefaultEntryPoint is the WASI command entry point used when the caller
// does not name one.
const DefaultEntryPoint = "_start"

// NewExecutionRequest builds a request with effective limits
// min(requested, tier ceiling, global ceiling). A zero requested value means
// "as much as the tier allows". The tier ceiling always wins over the
// client-requested value.
func NewExecutionRequest(input []byte, entry string, requestedMemoryMB int, requestedTimeout time.Duration, limits TierLimits, globalMemoryMB int, globalTimeout time.Duration) ExecutionRequest {
	if entry == "" {
		entry = DefaultEntryPoint
	}

	memory := clampInt(requestedMemoryMB, limits.MaxMemoryMB)
	memory = clampInt(memory, globalMemoryMB)

	timeout := clampDuration(requestedTimeout, limits.MaxExecutionTime())
	timeout = clampDuration(timeout, globalTimeout)

	return ExecutionRequest{
		Input:         input,
		EntryPoint:    entry,
		MemoryLimitMB: memory,
		Timeout:       timeout,
	}
}

func clampInt(requested, ceiling int) int {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func clampDuration(requested, ceiling time.Duration) time.Duration {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}
