package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"golang.org/x/sync/semaphore"

	"wasmgate/internal/domain"
)

const (
	wasmPageBytes = 64 * 1024
	pagesPerMB    = (1024 * 1024) / wasmPageBytes
	// maxLimitPages is the wasm32 address-space ceiling (4GiB). The runtime
	// config rejects anything above it, so oversized operator limits are
	// clamped here instead of aborting the process.
	maxLimitPages = 65536
)

// Service executes validated modules inside per-request wazero runtimes. A
// runtime instance is owned by exactly one call to Execute and is released on
// every exit path, including forced termination.
type Service struct {
	slots  *semaphore.Weighted
	logger *slog.Logger
}

// New builds an executor capped at maxConcurrent simultaneous executions.
func New(logger *slog.Logger, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	return &Service{
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger,
	}
}

// Execute runs the module's entry point with the request input on stdin and
// returns the captured stdout. Every failure mode is a value in the returned
// outcome; this function never returns a Go error.
//
// The watchdog is the execution context deadline: the runtime is configured
// to force-close the instance when the deadline fires, so a tight
// uninterruptible guest loop still terminates. The deadline is derived from a
// detached context, so a client disconnect does not abort execution and usage
// accounting always receives a terminal outcome.
func (s *Service) Execute(ctx context.Context, module Module, req domain.ExecutionRequest) domain.Outcome {
	outcome := s.run(ctx, module, req)
	ObserveOutcome(outcome.Status, outcome.Duration)
	return outcome
}

func (s *Service) run(ctx context.Context, module Module, req domain.ExecutionRequest) domain.Outcome {
	if module.Size() == 0 {
		return domain.Rejected("empty module")
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		if ctx.Err() != nil {
			return domain.Rejected("request abandoned before an execution slot was free")
		}
		return domain.Rejected("no execution slot available")
	}
	defer s.slots.Release(1)

	pages := req.MemoryLimitMB * pagesPerMB
	if pages <= 0 {
		pages = pagesPerMB
	}
	if pages > maxLimitPages {
		pages = maxLimitPages
	}
	limitPages := uint32(pages)

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), req.Timeout)
	defer cancel()

	runtimeConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(limitPages)
	runtime := wazero.NewRuntimeWithConfig(execCtx, runtimeConfig)
	defer runtime.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(execCtx, runtime)

	start := time.Now()

	compiled, err := runtime.CompileModule(execCtx, module.raw)
	if err != nil {
		return domain.Trapped(fmt.Sprintf("compile: %v", err), time.Since(start))
	}
	for _, mem := range compiled.ExportedMemories() {
		if uint64(mem.Min()) > uint64(limitPages) {
			return domain.MemoryExceeded(time.Since(start))
		}
	}

	var stdout bytes.Buffer
	// No filesystem, environment, wall clock, or host randomness is mounted:
	// stdin/stdout are the only channels in or out of the instance.
	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(req.Input)).
		WithStdout(&stdout).
		WithStderr(io.Discard).
		WithStartFunctions()

	instance, err := runtime.InstantiateModule(execCtx, compiled, moduleConfig)
	if err != nil {
		return s.classify(err, nil, limitPages, req.Timeout, nil, time.Since(start))
	}

	entry := instance.ExportedFunction(req.EntryPoint)
	if entry == nil {
		return domain.Trapped(fmt.Sprintf("entry point %q not exported", req.EntryPoint), time.Since(start))
	}

	_, err = entry.Call(execCtx)
	duration := time.Since(start)

	if err == nil {
		return domain.Success(stdout.Bytes(), duration, peakMemoryMB(instance))
	}
	return s.classify(err, instance, limitPages, req.Timeout, stdout.Bytes(), duration)
}

// classify maps a runtime failure onto exactly one outcome variant.
func (s *Service) classify(err error, instance wazeroapi.Module, limitPages uint32, timeout time.Duration, output []byte, duration time.Duration) domain.Outcome {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			// Normal proc_exit(0): the instance closed itself, so memory is
			// no longer readable and peak stays a best-effort zero.
			return domain.Success(output, duration, 0)
		case sys.ExitCodeDeadlineExceeded, sys.ExitCodeContextCanceled:
			// The watchdog closed the instance. The only cancellation source
			// in this pipeline is the execution deadline.
			s.logger.Debug("execution terminated by watchdog", "limit", timeout)
			return domain.TimedOut(timeout)
		default:
			return domain.Trapped(fmt.Sprintf("module exited with code %d", exitErr.ExitCode()), duration)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.TimedOut(timeout)
	}
	if memoryAtCeiling(instance, limitPages) {
		// The guest faulted with its linear memory grown to the configured
		// ceiling: the allocator denied growth, not the guest's own logic.
		return domain.MemoryExceeded(duration)
	}
	return domain.Trapped(err.Error(), duration)
}

func memoryAtCeiling(instance wazeroapi.Module, limitPages uint32) bool {
	if instance == nil {
		return false
	}
	mem := instance.Memory()
	if noMemory(mem) {
		return false
	}
	return uint64(mem.Size()) >= uint64(limitPages)*wasmPageBytes
}

// noMemory reports whether the instance has no linear memory. Memory() returns
// a concrete *wasm.MemoryInstance in an interface, so a module without memory
// yields a typed-nil interface that a plain == nil comparison misses.
func noMemory(mem wazeroapi.Memory) bool {
	if mem == nil {
		return true
	}
	v := reflect.ValueOf(mem)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// peakMemoryMB reads the final linear memory size. Wasm memory only grows, so
// the final size is the peak; it can never exceed the configured ceiling
// because growth beyond it is denied at allocation time.
func peakMemoryMB(instance wazeroapi.Module) int {
	mem := instance.Memory()
	if noMemory(mem) {
		return 0
	}
	const mb = 1024 * 1024
	return int((uint64(mem.Size()) + mb - 1) / mb)
}
