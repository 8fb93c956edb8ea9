package response

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// JSON writes status and v as a JSON body, logging (but not failing the
// request over) encode errors. Handlers in every package route both
// success payloads and *Error values through this single chokepoint so the
// wire format never drifts between resources.
func JSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("failed to encode response body", zap.Error(err))
	}
}

// Write inspects err: if it is an *Error it is written with its own status
// code, otherwise it is wrapped as an unexpected 500.
func Write(w http.ResponseWriter, logger *zap.Logger, err error) {
	if apiErr, ok := err.(*Error); ok {
		JSON(w, logger, apiErr.StatusCode, apiErr)
		return
	}
	if logger != nil {
		logger.Error("unhandled error reaching response.Write", zap.Error(err))
	}
	unexpected := ErrUnexpected()
	JSON(w, logger, unexpected.StatusCode, unexpected)
}
