package conductor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Params are query parameters for a read. Nil values are omitted, slices
// become repeated keys.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Set stores v under key unless v is the zero value of a string, or a nil pointer.
func (p Params) Set(key string, v any) Params {
	switch x := v.(type) {
	case nil:
		return p
	case string:
		if x == "" {
			return p
		}
	case *bool:
		if x == nil {
			return p
		}
		v = *x
	case []string:
		if len(x) == 0 {
			return p
		}
	}
	p[key] = v
	return p
}

// Encode renders p as a query string with keys in sorted order.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		switch v := p[k].(type) {
		case nil:
		case []string:
			for _, s := range v {
				values.Add(k, s)
			}
		case []any:
			for _, s := range v {
				values.Add(k, scalar(s))
			}
		default:
			values.Add(k, scalar(v))
		}
	}
	return values.Encode()
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
