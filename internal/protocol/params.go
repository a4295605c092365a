package protocol

import (
	"bytes"
)

// Params is an ordered set of call arguments. Keys serialize in insertion
// order and nil values are omitted, so optional arguments can be passed as nil.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams creates params from alternating key, value pairs.
func NewParams(kv ...any) *Params {
	p := &Params{values: make(map[string]any)}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(key, kv[i+1])
	}
	return p
}

// Set stores a value. Re-setting a key keeps its original position.
func (p *Params) Set(key string, value any) *Params {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Map returns the non-nil values as a plain map.
func (p *Params) Map() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		if v := p.values[k]; v != nil {
			out[k] = v
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		first := true
		for _, k := range p.keys {
			v := p.values[k]
			if v == nil {
				continue
			}
			key, err := Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := Marshal(v)
			if err != nil {
				return nil, err
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
