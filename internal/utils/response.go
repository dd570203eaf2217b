package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-reservation/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Code      string      `json:"code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError renders err in the response envelope with the status its kind
// maps to. Conflicts carry the contested seat numbers.
func WriteError(w http.ResponseWriter, message string, err error) int {
	status, code := apperr.HTTPStatus(err)
	resp := ErrorResponse(message, apperr.PublicMessage(err))
	resp.Code = code

	var conflict apperr.ConflictError
	if errors.As(err, &conflict) && len(conflict.SeatNumbers) > 0 {
		resp.Data = map[string][]string{"seat_numbers": conflict.SeatNumbers}
	}
	WriteJSON(w, status, resp)
	return status
}
