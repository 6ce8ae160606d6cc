package domain

import (
	"testing"
	"time"
)

func TestNewExecutionRequestClampsToTierCeilings(t *testing.T) {
	limits := TierLimits{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 5}

	tests := []struct {
		name        string
		memoryMB    int
		timeout     time.Duration
		wantMemory  int
		wantTimeout time.Duration
	}{
		{"zero means tier ceiling", 0, 0, 64, 5 * time.Second},
		{"below ceiling kept", 32, 2 * time.Second, 32, 2 * time.Second},
		{"above ceiling clamped", 512, time.Minute, 64, 5 * time.Second},
		{"negative treated as unset", -1, -time.Second, 64, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewExecutionRequest(nil, "", tt.memoryMB, tt.timeout, limits, 128, 30*time.Second)
			if req.MemoryLimitMB != tt.wantMemory {
				t.Errorf("memory = %d, want %d", req.MemoryLimitMB, tt.wantMemory)
			}
			if req.Timeout != tt.wantTimeout {
				t.Errorf("timeout = %s, want %s", req.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestNewExecutionRequestGlobalCeilingWins(t *testing.T) {
	limits := TierLimits{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 256, MaxExecutionSeconds: 30}
	req := NewExecutionRequest(nil, "", 0, 0, limits, 128, 5*time.Second)
	if req.MemoryLimitMB != 128 {
		t.Errorf("memory = %d, want global ceiling 128", req.MemoryLimitMB)
	}
	if req.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want global ceiling 5s", req.Timeout)
	}
}

func TestNewExecutionRequestDefaultsEntryPoint(t *testing.T) {
	limits := TierLimits{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 5}
	if got := NewExecutionRequest(nil, "", 0, 0, limits, 128, 5*time.Second).EntryPoint; got != DefaultEntryPoint {
		t.Errorf("entry = %q, want %q", got, DefaultEntryPoint)
	}
	if got := NewExecutionRequest(nil, "handle", 0, 0, limits, 128, 5*time.Second).EntryPoint; got != "handle" {
		t.Errorf("entry = %q, want handle", got)
	}
}

func TestTierLimitsValidate(t *testing.T) {
	valid := TierLimits{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid limits rejected: %v", err)
	}

	invalid := []TierLimits{
		{RequestsPerMinute: 0, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 5},
		{RequestsPerMinute: 10, RequestsPerDay: 5, MaxMemoryMB: 64, MaxExecutionSeconds: 5},
		{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: -1, MaxExecutionSeconds: 5},
		{RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 0},
	}
	for i, limits := range invalid {
		if err := limits.Validate(); err == nil {
			t.Errorf("case %d: %+v accepted", i, limits)
		}
	}
}

func TestOutcomeConstructorsKeepVariantFieldsConsistent(t *testing.T) {
	success := Success([]byte("out"), 100*time.Millisecond, 4)
	if !success.OK() || string(success.Output) != "out" || success.Reason != "" {
		t.Fatalf("success outcome malformed: %+v", success)
	}

	clamped := Success(nil, -time.Second, -3)
	if clamped.Duration != 0 || clamped.PeakMemoryMB != 0 {
		t.Fatalf("negative measurements not clamped: %+v", clamped)
	}

	timedOut := TimedOut(5 * time.Second)
	if timedOut.OK() || timedOut.Duration != 5*time.Second || timedOut.PeakMemoryMB != 0 || len(timedOut.Output) != 0 {
		t.Fatalf("timed-out outcome malformed: %+v", timedOut)
	}

	trapped := Trapped("unreachable", time.Millisecond)
	if trapped.Status != StatusTrapped || trapped.Reason == "" || len(trapped.Output) != 0 {
		t.Fatalf("trapped outcome malformed: %+v", trapped)
	}

	rejected := Rejected("bad magic")
	if rejected.Status != StatusRejected || rejected.Duration != 0 {
		t.Fatalf("rejected outcome malformed: %+v", rejected)
	}
}
