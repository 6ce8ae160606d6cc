package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"wasmgate/internal/service/admission"
)

// withAdmission runs the admission controller for the authenticated tenant
// and surfaces quota metadata as response headers. A denial short-circuits
// with 429, Retry-After and the window reset time.
func (r *Router) withAdmission(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		info, ok := authInfoFromContext(req.Context())
		if !ok {
			r.logger.Error("admission middleware reached without auth context", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		status, err := r.admission.CheckAndRecord(req.Context(), info.Credential.ID, info.Limits)
		if err != nil {
			var denied *admission.LimitExceededError
			if errors.As(err, &denied) {
				retryAfter := int(denied.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(denied.ResetsAt.Unix(), 10))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":               "rate limit exceeded",
					"window":              string(denied.Window),
					"retry_after_seconds": retryAfter,
				})
				return
			}
			r.logger.Error("admission check failed", "error", err)
			writeError(w, http.StatusInternalServerError, "admission unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit-Minute", strconv.Itoa(info.Limits.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Limit-Day", strconv.Itoa(info.Limits.RequestsPerDay))
		w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(status.RemainingMinute))
		w.Header().Set("X-RateLimit-Remaining-Day", strconv.Itoa(status.RemainingDay))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.ResetsAt.Unix(), 10))
		next(w, req)
	}
}
