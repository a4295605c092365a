package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is any inbound message: a response when ID is set, otherwise a
// pushed event.
type Frame struct {
	ID        *int64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// DecodeFrame parses an inbound text frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	f.Raw = data
	return &f, nil
}

// IsResponse reports whether the frame carries a correlation id.
func (f *Frame) IsResponse() bool {
	return f.ID != nil
}

// HasResult reports whether the result is a non-empty value.
func (f *Frame) HasResult() bool {
	return !IsEmpty(f.Result)
}

// IsEmpty reports whether raw JSON is absent, null or an empty object.
func IsEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	if trimmed[0] != '{' || len(trimmed) < 2 {
		return false
	}
	return len(bytes.TrimSpace(trimmed[1:len(trimmed)-1])) == 0
}
