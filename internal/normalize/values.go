package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"discussion_syncer/internal/domain"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// remoteTimeLayout is the layout of string dates the API returns.
const remoteTimeLayout = "2006-01-02 15:04:05"

// Fields is a canonical field mapping produced by a Strategy.
type Fields map[string]any

func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f Fields) Int64(key string) (int64, bool) {
	return toInt64(f[key])
}

func (f Fields) Int(key string) int {
	v, _ := toInt64(f[key])
	return int(v)
}

func (f Fields) String(key string) string {
	return toString(f[key])
}

func (f Fields) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

func (f Fields) Time(key string) *time.Time {
	t, ok := f[key].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func (f Fields) Ref(key string) domain.Ref {
	r, _ := f[key].(domain.Ref)
	return r
}

func (f Fields) Map(key string) map[string]any {
	m, _ := f[key].(map[string]any)
	return m
}

func (f Fields) Slice(key string) []any {
	s, _ := f[key].([]any)
	return s
}

// Raw marshals the value under key into a JSON blob, nil when absent.
func (f Fields) Raw(key string) (json.RawMessage, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// toMaps keeps the mapping elements of a collection value.
func toMaps(v any) []map[string]any {
	items := toSlice(v)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m := toMap(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// toTime converts epoch seconds or a remote date string to UTC time.
func toTime(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	if sec, ok := toInt64(v); ok {
		return time.Unix(sec, 0).UTC(), true
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(remoteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
