package schema

import (
	"fmt"
)

// ListSchemas maps where columns appear. Default is the global list; Tags
// maps tag to sub-tag to column names, where the sub-tag "default" applies to
// the tag as a whole.
type ListSchemas struct {
	Default []string                       `yaml:"default"`
	Tags    map[string]map[string][]string `yaml:"tags"`
}

const defaultKey = "default"

type Registry struct {
	order   []string
	columns map[string]Column
	deflt   []Column
	tags    map[string]map[string][]Column
}

// NewRegistry indexes columns and resolves list schemas against them. Schemas
// are applied in order; a later schema replaces an earlier one's entry for
// the same tag and its non-empty Default replaces the global list.
func NewRegistry(columns []Column, schemas ...ListSchemas) (*Registry, error) {
	r := &Registry{
		columns: make(map[string]Column, len(columns)),
		tags:    make(map[string]map[string][]Column),
	}
	for _, col := range columns {
		c, err := col.normalize()
		if err != nil {
			return nil, err
		}
		if _, dup := r.columns[c.Name]; !dup {
			r.order = append(r.order, c.Name)
		}
		r.columns[c.Name] = c
	}

	for _, s := range schemas {
		if len(s.Default) > 0 {
			cols, err := r.resolve(s.Default)
			if err != nil {
				return nil, fmt.Errorf("default list schema: %w", err)
			}
			r.deflt = cols
		}
		for tag, subs := range s.Tags {
			resolved := make(map[string][]Column, len(subs))
			for sub, names := range subs {
				cols, err := r.resolve(names)
				if err != nil {
					return nil, fmt.Errorf("list schema %s/%s: %w", tag, sub, err)
				}
				resolved[sub] = cols
			}
			r.tags[tag] = resolved
		}
	}
	return r, nil
}

func (r *Registry) resolve(names []string) ([]Column, error) {
	out := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := r.columns[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, n)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Registry) Column(name string) (Column, bool) {
	c, ok := r.columns[name]
	return c, ok
}

// Columns returns every column in declaration order.
func (r *Registry) Columns() []Column {
	out := make([]Column, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.columns[n])
	}
	return out
}

func (r *Registry) ColumnsAt(level Level) []Column {
	var out []Column
	for _, c := range r.Columns() {
		if c.Level == level {
			out = append(out, c)
		}
	}
	return out
}

// Default is the global list schema.
func (r *Registry) Default() []Column {
	return r.deflt
}

// ActiveSchema picks the columns for a list view. When tag has a list schema,
// the sub-tag's list wins, then the tag's "default", then the global default.
// Otherwise the view's own fallback applies.
func (r *Registry) ActiveSchema(fallback []Column, tag, subtag string) []Column {
	subs, ok := r.tags[tag]
	if tag == "" || !ok {
		return fallback
	}
	if subtag != "" {
		if cols, ok := subs[subtag]; ok {
			return cols
		}
	}
	if cols, ok := subs[defaultKey]; ok {
		return cols
	}
	return r.deflt
}

// Models maps each column name to its column, for templates that look up
// record kinds by name.
func (r *Registry) Models() map[string]Column {
	out := make(map[string]Column, len(r.columns))
	for k, v := range r.columns {
		out[k] = v
	}
	return out
}
