package gep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Canonical encoding rules
//
// The encoder emits compact JSON identical to ECMAScript JSON.stringify applied to a value whose
// object keys have been sorted. Matching that output keeps asset addresses interchangeable with
// other gep-a2a nodes:
//
//   - object keys sorted byte-wise ascending, Absent values dropped
//   - arrays keep their order
//   - strings escape only '"', '\' and control characters
//   - numbers use the shortest round-trip digits with ECMAScript exponent thresholds

type absent struct{}

// Absent marks a map value as missing. The key is dropped from the canonical form, which is
// how undefined properties behave on other implementations.
var Absent = absent{}

// Canonicalize returns the canonical JSON encoding of v.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, "$", v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, path string, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return encodeString(buf, path, val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return &CanonicalError{Path: path, Reason: fmt.Sprintf("invalid number %q", val.String())}
		}
		return encodeFloat(buf, path, f)
	case float64:
		return encodeFloat(buf, path, val)
	case float32:
		return encodeFloat(buf, path, float64(val))
	case int:
		return encodeFloat(buf, path, float64(val))
	case int8:
		return encodeFloat(buf, path, float64(val))
	case int16:
		return encodeFloat(buf, path, float64(val))
	case int32:
		return encodeFloat(buf, path, float64(val))
	case int64:
		return encodeFloat(buf, path, float64(val))
	case uint:
		return encodeFloat(buf, path, float64(val))
	case uint8:
		return encodeFloat(buf, path, float64(val))
	case uint16:
		return encodeFloat(buf, path, float64(val))
	case uint32:
		return encodeFloat(buf, path, float64(val))
	case uint64:
		return encodeFloat(buf, path, float64(val))
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, indexPath(path, i), s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if _, ok := elem.(absent); ok {
				// Undefined array slots serialize as null on other implementations.
				buf.WriteString("null")
				continue
			}
			if err := encodeValue(buf, indexPath(path, i), elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return encodeObject(buf, path, m)
	case map[string]any:
		return encodeObject(buf, path, val)
	case absent:
		return &CanonicalError{Path: path, Reason: "absent value outside an object"}
	default:
		return &CanonicalError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, path string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := v.(absent); ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyPath := path + "." + k
		if err := encodeString(buf, keyPath, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, keyPath, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, path, s string) error {
	if !utf8.ValidString(s) {
		return &CanonicalError{Path: path, Reason: "string is not valid UTF-8"}
	}
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

func encodeFloat(buf *bytes.Buffer, path string, f float64) error {
	s, err := FormatNumber(f)
	if err != nil {
		return &CanonicalError{Path: path, Reason: err.Error()}
	}
	buf.WriteString(s)
	return nil
}

// FormatNumber renders f the way ECMAScript Number.prototype.toString does.
// Non-finite values have no JSON representation and return an error.
func FormatNumber(f float64) (string, error) {
	if math.IsNaN(f) {
		return "", fmt.Errorf("NaN is not representable")
	}
	if math.IsInf(f, 0) {
		return "", fmt.Errorf("infinite number is not representable")
	}
	if f == 0 {
		// Covers -0 as well.
		return "0", nil
	}

	var sign string
	if f < 0 {
		sign = "-"
		f = -f
	}

	// Shortest digits that round-trip, as d.ddddde±xx.
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expPart, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mantissa, ".", "", 1)
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("unexpected float format %q", sci)
	}

	k := len(digits)
	n := exp + 1 // decimal point position relative to the digit string

	var out string
	switch {
	case k <= n && n <= 21:
		out = digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		out = digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		out = "0." + strings.Repeat("0", -n) + digits
	default:
		e := n - 1
		expSign := "+"
		if e < 0 {
			expSign = "-"
			e = -e
		}
		if k == 1 {
			out = digits + "e" + expSign + strconv.Itoa(e)
		} else {
			out = digits[:1] + "." + digits[1:] + "e" + expSign + strconv.Itoa(e)
		}
	}
	return sign + out, nil
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
