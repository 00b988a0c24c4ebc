package command

import (
	"encoding/json"
	"errors"

	"autotrader/internal/indicator"
)

// Result is the single outbound item produced for a Command: either a
// JSON-ready value or an error message. Results carry no correlation id;
// queue order pairs them with their Command.
type Result struct {
	Value any
	Err   string
}

// Timeout is what the bridge hands back when no Result arrived in time.
var Timeout = Result{Err: "timeout"}

// OK wraps a successful value.
func OK(v any) Result { return Result{Value: v} }

// Fail wraps an error. An insufficient-data error becomes a structured
// value, not an error message, so callers can tell it from a failure.
func Fail(err error) Result {
	var ide *indicator.InsufficientDataError
	if errors.As(err, &ide) {
		v := InsufficientData{Status: "insufficient_data", Indicator: ide.Indicator, Need: ide.Need, Have: ide.Have}
		var ce *codeError
		if errors.As(err, &ce) {
			v.Code = ce.code
		}
		return Result{Value: v}
	}
	return Result{Err: err.Error()}
}

// WithCode tags err with the instrument it concerns. The message is unchanged.
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &codeError{code: code, err: err}
}

type codeError struct {
	code string
	err  error
}

func (e *codeError) Error() string { return e.err.Error() }
func (e *codeError) Unwrap() error { return e.err }

// InsufficientData is the wire form of indicator.InsufficientDataError.
type InsufficientData struct {
	Code      string `json:"code,omitempty"`
	Status    string `json:"status"`
	Indicator string `json:"indicator"`
	Need      int    `json:"need"`
	Have      int    `json:"have"`
}

// IsError reports whether r carries an error message.
func (r Result) IsError() bool { return r.Err != "" }

// IsTimeout reports whether r is the bridge timeout.
func (r Result) IsTimeout() bool { return r.Err == Timeout.Err && r.Value == nil }

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	if r.Value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Value)
}
