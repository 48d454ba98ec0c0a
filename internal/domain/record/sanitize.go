package record

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Sanitize strips markup from every string in v, descending into maps and
// slices. Strings without angle brackets are left as typed so that
// ampersands in free text survive repeated saves. Stripped text is unescaped
// only when that cannot bring an angle bracket back.
func Sanitize(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if !strings.ContainsAny(t, "<>") {
			return t
		}
		clean := strictPolicy().Sanitize(t)
		if plain := html.UnescapeString(clean); !strings.ContainsAny(plain, "<>") {
			return plain
		}
		return clean
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = Sanitize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}
