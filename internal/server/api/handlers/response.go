package handlers

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// APIError is the error body for every API error response. Implements
// huma.StatusError so huma serializes it directly.
type APIError struct {
	status  int
	Success bool   `json:"success"`
	Err     string `json:"error"`
}

func (e *APIError) Error() string  { return e.Err }
func (e *APIError) GetStatus() int { return e.status }

// InitErrors overrides huma's error factory so every error response uses the
// unified {success, error} shape.
func InitErrors() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		detail := msg
		if len(errs) > 0 {
			parts := make([]string, len(errs))
			for i, e := range errs {
				parts[i] = e.Error()
			}
			detail = msg + ": " + strings.Join(parts, "; ")
		}
		return &APIError{status: status, Success: false, Err: detail}
	}
}

// DataBody wraps successful payloads.
type DataBody[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type DataOutput[T any] struct {
	Body DataBody[T]
}

func OK[T any](data T) *DataOutput[T] {
	return &DataOutput[T]{Body: DataBody[T]{Success: true, Data: data}}
}

// MsgBody wraps confirmations that carry no data.
type MsgBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MsgOutput struct {
	Body MsgBody
}

func Msg(message string) *MsgOutput {
	return &MsgOutput{Body: MsgBody{Success: true, Message: message}}
}
