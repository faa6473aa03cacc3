// Package canonjson produces the canonical JSON encoding used wherever this
// module computes a digest or compares payloads for equality: UTF-8, object
// keys sorted lexicographically, no insignificant whitespace.
package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Marshal encodes v as canonical JSON.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return encode(normalized)
}

// MarshalString is a convenience wrapper returning the canonical encoding as a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses canonical or ordinary JSON into the generic tree shape used
// by this package (map[string]any, []any, string, float64, bool, nil).
func Decode(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return denumber(v), nil
}

// denumber converts json.Number leaves to float64 so the tree matches the
// shape produced by a plain json.Unmarshal into `any`.
func denumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = denumber(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = denumber(val)
		}
		return out
	default:
		return v
	}
}

// normalize round-trips v through encoding/json so struct values become the
// same map[string]any/[]any tree that hand-built payloads already use; this
// keeps Marshal's sort-and-encode logic single-pathed.
func normalize(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any, string, float64, bool, nil,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, json.Number:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// encode writes the canonical form of a normalized tree.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case float64:
		writeNumber(buf, t)
	case float32:
		writeNumber(buf, float64(t))
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case json.Number:
		buf.WriteString(t.String())
	case string:
		writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, elem)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonjson: unsupported value type %T", v)
	}
	return nil
}

func writeNumber(buf *bytes.Buffer, f float64) {
	b, _ := json.Marshal(f)
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// RewriteTree applies fn to every string leaf whose key in its parent object
// equals matchKey, returning a new tree. Used by the bundle importer to
// recursively remap `run_id` fields inside arbitrary event payloads without
// resorting to string substitution.
func RewriteTree(v any, matchKey string, fn func(old string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == matchKey {
				if s, ok := val.(string); ok {
					out[k] = fn(s)
					continue
				}
			}
			out[k] = RewriteTree(val, matchKey, fn)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RewriteTree(val, matchKey, fn)
		}
		return out
	default:
		return v
	}
}
