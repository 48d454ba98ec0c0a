package episode

import (
	"fmt"
	"sort"
)

// AdmitRequest is the body of POST /api/v1/episode.
type AdmitRequest struct {
	Demographics    map[string]interface{} `validate:"required"`
	Location        map[string]interface{}
	Category        string `validate:"max=200"`
	DateOfAdmission string `validate:"tracker_date"`
	DischargeDate   string `validate:"tracker_date"`
	// Fields holds the episode fields present in the body.
	Fields map[string]interface{}
	// Tags are the team names switched on in tagging[0].
	Tags []string
}

// NewAdmitRequest picks the admission parts out of a decoded JSON body.
func NewAdmitRequest(data map[string]interface{}) (*AdmitRequest, error) {
	req := &AdmitRequest{Fields: map[string]interface{}{}}
	if v, ok := data["demographics"]; ok {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: demographics must be an object", ErrInvalidField)
		}
		req.Demographics = m
	}
	if v, ok := data["location"]; ok && v != nil {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: location must be an object", ErrInvalidField)
		}
		req.Location = m
	}
	for _, name := range Fields {
		if v, ok := data[name]; ok {
			req.Fields[name] = v
		}
	}
	req.Category, _ = data["category"].(string)
	req.DateOfAdmission, _ = data["date_of_admission"].(string)
	req.DischargeDate, _ = data["discharge_date"].(string)

	if v, ok := data["tagging"]; ok {
		list, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: tagging must be a list", ErrInvalidField)
		}
		if len(list) > 0 {
			first, ok := list[0].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: tagging[0] must be an object", ErrInvalidField)
			}
			req.Tags = EnabledNames(first)
		}
	}
	return req, nil
}

// EnabledNames returns the keys of a {name: bool} map whose value is true,
// in sorted order.
func EnabledNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for name, v := range m {
		if on, _ := v.(bool); on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
