package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GriffinCanCode/devbridge/internal/protocol"
)

// Decode unmarshals a raw result into v. An empty result leaves v untouched.
func Decode(raw json.RawMessage, v any) error {
	if protocol.IsEmpty(raw) {
		return nil
	}
	if err := protocol.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// CallAs invokes method and decodes its result into T.
func CallAs[T any](ctx context.Context, d *Domain, method string, params *protocol.Params) (T, error) {
	var out T
	raw, err := d.Invoke(ctx, method, params)
	if err != nil {
		return out, err
	}
	err = Decode(raw, &out)
	return out, err
}
