package templates

import (
	"encoding/json"
	"html/template"
)

// BaseFuncs is available to every template in a Set.
func BaseFuncs() template.FuncMap {
	return template.FuncMap{
		"json": toJSON,
		"dict": dict,
	}
}

// toJSON renders v as a JavaScript value for inline scripts.
func toJSON(v interface{}) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

// dict builds a map from alternating keys and values, for passing several
// values to an included template.
func dict(pairs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			continue
		}
		m[k] = pairs[i+1]
	}
	return m
}
