package httpx

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"wasmgate/internal/domain"
	"wasmgate/internal/service/sandbox"
)

const multipartMemoryLimit = 10 << 20

type executeResponse struct {
	Status         string `json:"status"`
	Output         string `json:"output,omitempty"`
	OutputEncoding string `json:"output_encoding,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	PeakMemoryMB   int    `json:"peak_memory_mb,omitempty"`
}

// handleExecute is the request-admission-and-execution pipeline endpoint.
// Module failures (trap, timeout, memory) are structured 200 responses: the
// transport call succeeded, the module did not.
func (r *Router) handleExecute(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, int64(r.cfg.MaxModuleBytes+r.cfg.MaxInputBytes)+multipartMemoryLimit)
	if err := req.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	moduleBytes, err := readFormFile(req, "wasm", r.cfg.MaxModuleBytes)
	if err != nil {
		writeError(w, fieldErrorStatus(err), err.Error())
		return
	}
	if moduleBytes == nil {
		writeError(w, http.StatusBadRequest, "missing 'wasm' field in form data")
		return
	}

	rawInput, err := readFormFile(req, "input", r.cfg.MaxInputBytes)
	if err != nil {
		writeError(w, fieldErrorStatus(err), err.Error())
		return
	}
	if rawInput == nil {
		rawInput = []byte(req.FormValue("input"))
	}
	input, err := decodeInput(rawInput, req.FormValue("input_encoding"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(input) > r.cfg.MaxInputBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "input exceeds size limit")
		return
	}

	tenant := info.Credential.ID
	record := func(outcome domain.Outcome) {
		r.recorder.Record(domain.NewUsageRecord(tenant, outcome, len(moduleBytes), len(input)))
	}

	module, err := sandbox.Validate(moduleBytes, r.cfg.MaxModuleBytes)
	if err != nil {
		record(domain.Rejected(err.Error()))
		status := http.StatusBadRequest
		if errors.Is(err, sandbox.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	execReq := domain.NewExecutionRequest(
		input,
		req.FormValue("entry"),
		formInt(req, "memory_mb"),
		time.Duration(formInt(req, "timeout_seconds"))*time.Second,
		info.Limits,
		r.cfg.MemoryLimitMB,
		r.cfg.ExecutionTimeout,
	)

	outcome := r.executor.Execute(req.Context(), module, execReq)
	record(outcome)
	writeJSON(w, http.StatusOK, toExecuteResponse(outcome))
}

func toExecuteResponse(outcome domain.Outcome) executeResponse {
	resp := executeResponse{
		Status:       string(outcome.Status),
		DurationMS:   outcome.Duration.Milliseconds(),
		PeakMemoryMB: outcome.PeakMemoryMB,
	}
	if outcome.OK() {
		if utf8.Valid(outcome.Output) {
			resp.Output = string(outcome.Output)
		} else {
			resp.Output = base64.StdEncoding.EncodeToString(outcome.Output)
			resp.OutputEncoding = "base64"
		}
	} else {
		resp.Error = outcome.Reason
	}
	return resp
}

var errFieldTooLarge = errors.New("field exceeds size limit")

func fieldErrorStatus(err error) int {
	if errors.Is(err, errFieldTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// readFormFile reads an optional multipart file field, enforcing maxBytes.
// Returns nil when the field is absent.
func readFormFile(req *http.Request, field string, maxBytes int) ([]byte, error) {
	file, _, err := req.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %q field: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read %q field: %w", field, err)
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %q field over %d bytes", errFieldTooLarge, field, maxBytes)
	}
	return data, nil
}

// decodeInput resolves the accepted input encodings to canonical bytes. The
// set is closed: raw and text pass through, base64 is decoded, anything else
// is rejected at the boundary.
func decodeInput(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", "raw", "text":
		return data, nil
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 input: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported input encoding %q", encoding)
	}
}

func formInt(req *http.Request, field string) int {
	value := req.FormValue(field)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
