// Package schema describes the record kinds ("columns") shown on episode
// lists and how the list for a team or sub-team is chosen.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrUnknownColumn = errors.New("unknown column")

type Level string

const (
	LevelEpisode Level = "episode"
	LevelPatient Level = "patient"
)

// Column is a record kind attached to an episode or a patient.
type Column struct {
	Name          string   `yaml:"name"`
	Model         string   `yaml:"model"`
	Title         string   `yaml:"title"`
	Single        bool     `yaml:"single"`
	Icon          string   `yaml:"icon"`
	ListLimit     *int     `yaml:"list_limit"`
	BatchTemplate *string  `yaml:"batch_template"`
	Level         Level    `yaml:"level"`
	Fields        []string `yaml:"fields"`
}

// Selector picks the first existing template among candidates.
type Selector interface {
	Select(names ...string) (string, error)
}

func (c Column) normalize() (Column, error) {
	if c.Name == "" {
		c.Name = CamelToSnake(c.Model)
	}
	if c.Name == "" {
		return c, fmt.Errorf("column needs a name or a model")
	}
	switch c.Level {
	case "":
		c.Level = LevelEpisode
	case LevelEpisode, LevelPatient:
	default:
		return c, fmt.Errorf("column %s: level must be episode or patient, got %q", c.Name, c.Level)
	}
	return c, nil
}

// DisplayTitle is Title when set, otherwise the name with underscores
// replaced by spaces and each word capitalised.
func (c Column) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	words := strings.Split(c.Name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// AllowsField reports whether key may be stored on this column. Columns
// without a declared field list accept anything.
func (c Column) AllowsField(key string) bool {
	if len(c.Fields) == 0 {
		return true
	}
	for _, f := range c.Fields {
		if f == key {
			return true
		}
	}
	return false
}

// DisplayTemplate is the template used to show one record in a list.
func (c Column) DisplayTemplate(sel Selector, team, subteam string) (string, error) {
	return sel.Select(teamPaths("records", c.Name+".html", team, subteam)...)
}

// FormTemplate is the modal used to edit one record.
func (c Column) FormTemplate(sel Selector, team, subteam string) (string, error) {
	return sel.Select(teamPaths("modals", c.Name+"_modal.html", team, subteam)...)
}

// teamPaths lists <dir>/<team>/<subteam>/<file>, <dir>/<team>/<file> and
// <dir>/<file>, most specific first, omitting parts that are not given.
func teamPaths(dir, file, team, subteam string) []string {
	var names []string
	if team != "" {
		if subteam != "" {
			names = append(names, dir+"/"+team+"/"+subteam+"/"+file)
		}
		names = append(names, dir+"/"+team+"/"+file)
	}
	return append(names, dir+"/"+file)
}

// CamelToSnake converts a model name like PastMedicalHistory to
// past_medical_history. Runs of capitals stay together: HTMLReport becomes
// html_report.
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := strings.Trim(b.String(), "_")
	return strings.ReplaceAll(out, "__", "_")
}
