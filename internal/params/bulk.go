package params

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/conneroisu/stitch/internal/errors"
)

var bom = []byte("\uFEFF")

// ParseBulk parses the bulk parameters attribute. Strict JSON is tried first;
// if that fails, a leading BOM is dropped and comments and trailing commas
// are removed before a second strict parse. The returned error is always a
// recoverable params error.
//
// A JSON object contributes its members in document order and an array its
// indices. Any other JSON value contributes nothing.
func ParseBulk(raw string) (*Set, error) {
	set, strictErr := decodeObject([]byte(raw))
	if strictErr == nil {
		return set, nil
	}

	cleaned, err := standardize([]byte(raw))
	if err == nil {
		set, err = decodeObject(cleaned)
	}
	if err != nil {
		return NewSet(), errors.NewParamsError(errors.ErrCodeParamsJSON,
			"include params attribute is not valid JSON", err)
	}
	return set, nil
}

func standardize(raw []byte) ([]byte, error) {
	b := bytes.TrimSpace(bytes.TrimPrefix(raw, bom))
	// hujson edits its input in place.
	buf := make([]byte, len(b))
	copy(buf, b)
	return hujson.Standardize(buf)
}

func decodeObject(data []byte) (*Set, error) {
	if !json.Valid(data) {
		return nil, stderrors.New("invalid JSON")
	}

	set := NewSet()
	switch firstByte(data) {
	case '{':
		members := orderedmap.New[string, json.RawMessage]()
		if err := members.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		for pair := members.Oldest(); pair != nil; pair = pair.Next() {
			v, err := decodeValue(pair.Value)
			if err != nil {
				return nil, err
			}
			set.Set(pair.Key, v)
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		for i, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			set.Set(strconv.Itoa(i), v)
		}
	}
	// Scalars parse fine but carry no keys.
	return set, nil
}

func firstByte(data []byte) byte {
	b := bytes.TrimLeft(data, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func decodeValue(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Value{}, err
	}
	return toValue(v), nil
}

func toValue(v interface{}) Value {
	if v == nil {
		return NullValue()
	}
	return String(stringify(v))
}

// stringify renders a decoded JSON value the way String(v) does in a browser.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return formatNumber(f)
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	case map[string]interface{}:
		return "[object Object]"
	default:
		return fmt.Sprint(t)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
