// Package response writes the JSON envelope shared by every API endpoint:
// {"success": bool, "message": string, "data": ...} on success and
// {"success": false, "message": string, "error": CODE, "errors": [...]} on failure.
package response

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes.
const (
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeTokenNotFound           = "TOKEN_NOT_FOUND"
	CodeTokenRevoked            = "TOKEN_REVOKED"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeDuplicateEmail          = "DUPLICATE_EMAIL"
	CodeNoToken                 = "NO_TOKEN"
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeVerificationFailed      = "VERIFICATION_FAILED"
	CodeNotFound                = "NOT_FOUND"
	CodeInternal                = "INTERNAL"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope with a machine-readable code.
func Error(w http.ResponseWriter, status int, code, message string, details ...string) {
	write(w, status, Envelope{Message: message, Error: code, Errors: details})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
