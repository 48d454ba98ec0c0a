// Package templates loads HTML templates from layered filesystems and picks
// between candidate names.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// ErrTemplateDoesNotExist is returned when none of the requested names exist.
var ErrTemplateDoesNotExist = errors.New("template does not exist")

// Set holds every .html file found in a list of filesystems, addressed by its
// slash path. Earlier filesystems shadow later ones.
type Set struct {
	root  *template.Template
	names map[string]bool
}

// New parses all .html files under each filesystem. Templates can include one
// another by path with {{template "path.html" .}}, or by a computed path with
// {{include .path .}}.
func New(funcs template.FuncMap, layers ...fs.FS) (*Set, error) {
	s := &Set{names: make(map[string]bool)}
	s.root = template.New("").
		Funcs(BaseFuncs()).
		Funcs(template.FuncMap{"include": s.include}).
		Funcs(funcs)
	for i, fsys := range layers {
		if fsys == nil {
			continue
		}
		err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || path.Ext(p) != ".html" || s.names[p] {
				return nil
			}
			content, err := fs.ReadFile(fsys, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			if _, err := s.root.New(p).Parse(string(content)); err != nil {
				return fmt.Errorf("parse %s: %w", p, err)
			}
			s.names[p] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load template layer %d: %w", i, err)
		}
	}
	return s, nil
}

// Exists reports whether name was loaded.
func (s *Set) Exists(name string) bool {
	return s.names[name]
}

// Select returns the first candidate that exists.
func (s *Set) Select(names ...string) (string, error) {
	for _, n := range names {
		if s.names[n] {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTemplateDoesNotExist, strings.Join(names, ", "))
}

// Render executes the named template.
func (s *Set) Render(w io.Writer, name string, data interface{}) error {
	if !s.names[name] {
		return fmt.Errorf("%w: %s", ErrTemplateDoesNotExist, name)
	}
	return s.root.ExecuteTemplate(w, name, data)
}

func (s *Set) include(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := s.Render(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Names lists every loaded template path in lexical order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
