package domain

import "time"

// OutcomeStatus names the terminal state of one execution. Exactly one status
// applies per execution and no state is revisited.
type OutcomeStatus string

const (
	StatusSuccess        OutcomeStatus = "success"
	StatusTrapped        OutcomeStatus = "trapped"
	StatusTimedOut       OutcomeStatus = "time_limit_exceeded"
	StatusMemoryExceeded OutcomeStatus = "memory_limit_exceeded"
	StatusRejected       OutcomeStatus = "validation_rejected"
)

// Outcome is the result of one sandbox execution. Every failure mode is a
// value here, never a Go error: callers treat all terminal states uniformly.
// Use the constructors; they keep variant fields consistent (a timeout never
// carries a final peak-memory reading, output only accompanies success).
type Outcome struct {
	Status       OutcomeStatus
	Output       []byte
	Duration     time.Duration
	PeakMemoryMB int
	Reason       string
}

// Success builds a completed outcome. Measurements are host-side: duration is
// wall clock, peak is the final linear memory size and never exceeds the
// configured ceiling.
func Success(output []byte, duration time.Duration, peakMemoryMB int) Outcome {
	if duration < 0 {
		duration = 0
	}
	if peakMemoryMB < 0 {
		peakMemoryMB = 0
	}
	return Outcome{Status: StatusSuccess, Output: output, Duration: duration, PeakMemoryMB: peakMemoryMB}
}

// Trapped builds an outcome for a module that faulted at load or run time.
func Trapped(reason string, duration time.Duration) Outcome {
	return Outcome{Status: StatusTrapped, Reason: reason, Duration: duration}
}

// TimedOut builds an outcome for a forcibly terminated execution. Duration is
// the enforced limit, not a measurement of useful work.
func TimedOut(limit time.Duration) Outcome {
	return Outcome{Status: StatusTimedOut, Duration: limit, Reason: "execution time limit exceeded"}
}

// MemoryExceeded builds an outcome for an execution aborted at the allocation
// ceiling.
func MemoryExceeded(duration time.Duration) Outcome {
	return Outcome{Status: StatusMemoryExceeded, Duration: duration, Reason: "memory limit exceeded"}
}

// Rejected builds an outcome for input that never reached the runtime.
func Rejected(reason string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

// OK reports whether the execution completed normally.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }
