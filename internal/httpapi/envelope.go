package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vitalstream/bioengine/internal/types"
)

// envelope is the response shape every handler in this package writes:
// {success, data?, message?, error?:{code, message, details?}}.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Details map[string]any  `json:"details,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeOKMessage(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

// writeErr maps err onto the closed error taxonomy and its HTTP status
// code. Non-EngineError errors are reported as BLUETOOTH_ERROR with no
// internal detail crossing the boundary, matching the Coordinator's own
// deviceErr fallback.
func writeErr(w http.ResponseWriter, err error) {
	ee, ok := err.(*types.EngineError)
	if !ok {
		ee = types.NewError(types.ErrBluetoothError, err.Error())
	}
	writeJSON(w, statusFor(ee.Code), envelope{
		Success: false,
		Error:   &errorBody{Code: ee.Code, Message: ee.Message, Details: ee.Details},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Error:   &errorBody{Code: types.ErrInvalidParameters, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// statusFor maps the closed error taxonomy to an HTTP status code.
func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrDeviceNotFound, types.ErrSessionNotFound, types.ErrFileNotFound:
		return http.StatusNotFound
	case types.ErrDeviceBusy, types.ErrRecordingInProgress:
		return http.StatusConflict
	case types.ErrInvalidSettings, types.ErrInvalidFormat, types.ErrInvalidParameters:
		return http.StatusBadRequest
	case types.ErrPermissionDenied:
		return http.StatusForbidden
	case types.ErrConnectionTimeout:
		return http.StatusGatewayTimeout
	case types.ErrInsufficientSpace:
		return http.StatusInsufficientStorage
	case types.ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case types.ErrExportFailed:
		return http.StatusInternalServerError
	case types.ErrConnectionFailed, types.ErrBluetoothError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
