package protocol

import (
	"github.com/bytedance/sonic"
)

// codec is std-compatible so map keys serialize in sorted order.
var codec = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}
