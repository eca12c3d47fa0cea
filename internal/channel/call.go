// Package channel implements the named request/response channel the
// application layer uses to reach the SMS bridge.
package channel

import (
	"encoding/json"
)

// Name identifies the channel.
const Name = "sms_tracker/sms"

// Methods served on the channel.
const (
	MethodCheckPermission   = "checkSmsPermission"
	MethodRequestPermission = "requestSmsPermission"
	MethodGetAllSms         = "getAllSms"
)

// Error codes returned to callers.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeReadError        = "SMS_READ_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeBadRequest       = "BAD_REQUEST"
)

// MethodCall is one request on the channel.
type MethodCall struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusNotImplemented Status = "notImplemented"
)

// Response answers one MethodCall. Result is only meaningful on success.
type Response struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Result  any    `json:"result"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func Success(id string, result any) Response {
	return Response{ID: id, Status: StatusSuccess, Result: result}
}

func Error(id, code, message string, details any) Response {
	return Response{ID: id, Status: StatusError, Code: code, Message: message, Details: details}
}

func NotImplemented(id string) Response {
	return Response{ID: id, Status: StatusNotImplemented}
}
