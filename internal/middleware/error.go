package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/openvest/brokerlink/internal/errors"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError maps an error to its HTTP status and writes the error JSON.
// Untyped errors come out as a plain 500.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.StatusCode)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.ErrorCode,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: "internal server error",
	})
}
