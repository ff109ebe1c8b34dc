package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Var is one environment variable.
type Var struct {
	Key   string
	Value string
}

// Env is an ordered set of environment variables. Rendering follows
// insertion order, which is also the order keys appear in config files.
type Env []Var

// Get returns the value for key.
func (e Env) Get(key string) (string, bool) {
	for _, v := range e {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// Set assigns key, replacing an existing value in place or appending.
func (e Env) Set(key, value string) Env {
	for i, v := range e {
		if v.Key == key {
			e[i].Value = value
			return e
		}
	}
	return append(e, Var{Key: key, Value: value})
}

// Merge returns a copy of e with every entry of other applied through Set.
func (e Env) Merge(other Env) Env {
	out := make(Env, len(e), len(e)+len(other))
	copy(out, e)
	for _, v := range other {
		out = out.Set(v.Key, v.Value)
	}
	return out
}

// Keys returns the variable names in order.
func (e Env) Keys() []string {
	keys := make([]string, len(e))
	for i, v := range e {
		keys[i] = v.Key
	}
	return keys
}

// UnmarshalJSON decodes a JSON object of strings, keeping key order.
func (e *Env) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("env must be an object")
	}

	var out Env
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("env key must be a string")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("env %q: %w", key, err)
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*e = out
	return nil
}

// MarshalJSON encodes the variables as a JSON object in order.
func (e Env) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a YAML mapping of strings, keeping key order.
func (e *Env) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: env must be a mapping", node.Line)
	}
	var out Env
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, value string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("env %q: %w", key, err)
		}
		out = out.Set(key, value)
	}
	*e = out
	return nil
}
