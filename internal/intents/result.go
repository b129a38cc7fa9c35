package intents

import "reflect"

// Code classifies a business outcome that is reported back to the model
// instead of failing the message.
type Code string

const (
	CodeAlreadyActive    Code = "AlreadyActive"
	CodeNotFound         Code = "NotFound"
	CodeNoPrice          Code = "NoPrice"
	CodeNoActiveCampaign Code = "NoActiveCampaign"
	CodeUnauthorized     Code = "Unauthorized"
	CodePlayerNotFound   Code = "PlayerNotFound"
	CodeInvalidAmount    Code = "InvalidAmount"
	CodeInvalidArguments Code = "InvalidArguments"
)

// Result is the outcome of one dispatched intent.
type Result struct {
	Intent string
	// Data is the payload for the model on success.
	Data any
	// Error and Message are set for business outcomes.
	Error   Code
	Message string
	// Image is an optional picture the transport may attach to the reply.
	Image string
}

func NewResult(intent string, data any) *Result {
	return &Result{Intent: intent, Data: data}
}

func ErrorResult(intent string, code Code, message string) *Result {
	return &Result{Intent: intent, Error: code, Message: message}
}

func (r *Result) WithImage(url string) *Result {
	r.Image = url
	return r
}

// IsError reports whether the result carries a business error.
func (r *Result) IsError() bool { return r.Error != "" }

// Payload is what gets serialised back to the model.
func (r *Result) Payload() any {
	if r.IsError() {
		return map[string]any{"error": string(r.Error), "message": r.Message}
	}
	return r.Data
}

// Empty reports a successful result with nothing to say: no data or an empty list.
func (r *Result) Empty() bool {
	if r.IsError() {
		return false
	}
	if r.Data == nil {
		return true
	}
	v := reflect.ValueOf(r.Data)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}
