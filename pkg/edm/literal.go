package edm

import (
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layouts for the temporal primitive types.
const (
	DateLayout           = "2006-01-02"
	TimeOfDayLayout      = "15:04:05.999999999"
	DateTimeOffsetLayout = time.RFC3339Nano
)

var durationPattern = regexp.MustCompile(`^-?P(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)

// ParseLiteral converts a URL literal (key predicate or function
// parameter) of the given primitive type into its Go value:
//
//	integral types      int64
//	Single/Double/Decimal float64
//	Boolean             bool
//	String              string
//	Guid                uuid.UUID
//	Date, DateTimeOffset time.Time
//	TimeOfDay, Duration string
//	Binary              []byte
//
// The literal null yields nil.
func ParseLiteral(typeName, raw string) (any, error) {
	if raw == "null" {
		return nil, nil
	}
	switch typeName {
	case TypeString:
		if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' {
			return nil, fmt.Errorf("string literal %q must be quoted", raw)
		}
		body := raw[1 : len(raw)-1]
		if strings.Count(body, "'")%2 != 0 || strings.Contains(strings.ReplaceAll(body, "''", ""), "'") {
			return nil, fmt.Errorf("string literal %q has an unescaped quote", raw)
		}
		return strings.ReplaceAll(body, "''", "'"), nil
	case TypeBoolean:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean literal %q", raw)
	case TypeByte:
		v, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid %s literal %q", typeName, raw)
		}
		return int64(v), nil
	case TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		v, err := strconv.ParseInt(raw, 10, intBits(typeName))
		if err != nil {
			return nil, fmt.Errorf("invalid %s literal %q", typeName, raw)
		}
		return v, nil
	case TypeSingle, TypeDouble, TypeDecimal:
		switch raw {
		case "INF":
			return math.Inf(1), nil
		case "-INF":
			return math.Inf(-1), nil
		case "NaN":
			return math.NaN(), nil
		}
		v, err := strconv.ParseFloat(strings.TrimRight(raw, "mMdDfF"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s literal %q", typeName, raw)
		}
		return v, nil
	case TypeGuid:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid guid literal %q", raw)
		}
		return id, nil
	case TypeDate:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date literal %q", raw)
		}
		return t, nil
	case TypeDateTimeOffset:
		t, err := time.Parse(DateTimeOffsetLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid datetimeoffset literal %q", raw)
		}
		return t, nil
	case TypeTimeOfDay:
		if _, err := time.Parse(TimeOfDayLayout, raw); err != nil {
			return nil, fmt.Errorf("invalid timeofday literal %q", raw)
		}
		return raw, nil
	case TypeDuration:
		body, ok := unwrapPrefixed(raw, "duration")
		if !ok || !durationPattern.MatchString(body) {
			return nil, fmt.Errorf("invalid duration literal %q", raw)
		}
		return body, nil
	case TypeBinary:
		body, ok := unwrapPrefixed(raw, "binary")
		if !ok {
			return nil, fmt.Errorf("invalid binary literal %q", raw)
		}
		data, err := decodeBase64(body)
		if err != nil {
			return nil, fmt.Errorf("invalid binary literal %q: %w", raw, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no literal form for type %s", typeName)
}

// FormatLiteral renders v as a URL literal of the given primitive type. It
// accepts the values ParseLiteral and FromJSON produce.
func FormatLiteral(typeName string, v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	switch typeName {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return strconv.FormatBool(b), nil
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		n, ok := toInt64(v)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return strconv.FormatInt(n, 10), nil
	case TypeSingle, TypeDouble, TypeDecimal:
		f, ok := toFloat64(v)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return formatFloat(f), nil
	case TypeGuid:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case string:
			return id, nil
		}
		return "", typeMismatch(typeName, v)
	case TypeDate, TypeDateTimeOffset:
		switch t := v.(type) {
		case time.Time:
			if typeName == TypeDate {
				return t.Format(DateLayout), nil
			}
			return t.Format(DateTimeOffsetLayout), nil
		case string:
			return t, nil
		}
		return "", typeMismatch(typeName, v)
	case TypeTimeOfDay:
		s, ok := v.(string)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return s, nil
	case TypeDuration:
		s, ok := v.(string)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return "duration'" + s + "'", nil
	case TypeBinary:
		b, ok := v.([]byte)
		if !ok {
			return "", typeMismatch(typeName, v)
		}
		return "binary'" + base64.URLEncoding.EncodeToString(b) + "'", nil
	}
	return "", fmt.Errorf("no literal form for type %s", typeName)
}

// FromJSON converts a decoded JSON value (string, float64, bool, nil) into
// the Go value ParseLiteral would produce for the same primitive type.
func FromJSON(typeName string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typeName {
	case TypeString, TypeTimeOfDay, TypeDuration:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return s, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return b, nil
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		if s, ok := v.(string); ok {
			return ParseLiteral(typeName, s)
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return n, nil
	case TypeSingle, TypeDouble, TypeDecimal:
		if s, ok := v.(string); ok {
			return ParseLiteral(typeName, s)
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return f, nil
	case TypeGuid, TypeDate, TypeDateTimeOffset:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return ParseLiteral(typeName, s)
	case TypeBinary, TypeStream:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(typeName, v)
		}
		return decodeBase64(s)
	}
	return nil, fmt.Errorf("no JSON form for type %s", typeName)
}

// ToJSON converts a Go value of the given primitive type into a value
// encoding/json renders in the wire format.
func ToJSON(typeName string, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if typeName == TypeDate {
			return x.Format(DateLayout)
		}
		return x.Format(DateTimeOffsetLayout)
	case uuid.UUID:
		return x.String()
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case float64:
		if math.IsInf(x, 1) {
			return "INF"
		}
		if math.IsInf(x, -1) {
			return "-INF"
		}
		if math.IsNaN(x) {
			return "NaN"
		}
		return x
	}
	return v
}

func intBits(typeName string) int {
	switch typeName {
	case TypeSByte:
		return 8
	case TypeInt16:
		return 16
	case TypeInt32:
		return 32
	}
	return 64
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func unwrapPrefixed(raw, prefix string) (string, bool) {
	if len(raw) < len(prefix)+2 || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", false
	}
	rest := raw[len(prefix):]
	if rest[0] != '\'' || rest[len(rest)-1] != '\'' {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func typeMismatch(typeName string, v any) error {
	return fmt.Errorf("value of type %T is not a valid %s", v, typeName)
}
