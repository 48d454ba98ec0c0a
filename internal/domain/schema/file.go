package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk schema: extra columns and the list schemas.
type File struct {
	Columns     []Column    `yaml:"columns"`
	ListSchemas ListSchemas `yaml:"list_schemas"`
}

func intPtr(n int) *int { return &n }

// Builtin is the schema used when no file is configured.
func Builtin() *File {
	return &File{
		Columns: []Column{
			{Model: "Demographics", Single: true, Level: LevelPatient, Icon: "fa fa-user",
				Fields: []string{"hospital_number", "nhs_number", "name", "date_of_birth", "gender", "ethnicity"}},
			{Model: "Location", Single: true, Level: LevelEpisode, Icon: "fa fa-map-marker",
				Fields: []string{"category", "hospital", "ward", "bed"}},
			{Model: "Diagnosis", Level: LevelEpisode, Icon: "fa fa-stethoscope"},
			{Model: "PastMedicalHistory", Level: LevelEpisode, Icon: "fa fa-history"},
			{Model: "Allergies", Level: LevelPatient, Icon: "fa fa-warning"},
			{Model: "MicrobiologyTest", Title: "Investigations", Level: LevelEpisode, Icon: "fa fa-crosshairs", ListLimit: intPtr(3)},
			{Model: "GeneralNote", Level: LevelEpisode, Icon: "fa fa-info-circle"},
			{Model: "Todo", Title: "To Do", Level: LevelEpisode, Icon: "fa fa-th-list"},
		},
		ListSchemas: ListSchemas{
			Default: []string{"location", "demographics", "diagnosis", "past_medical_history",
				"allergies", "microbiology_test", "general_note", "todo"},
		},
	}
}

// LoadFile reads a YAML schema. Its columns are added to the built-in ones,
// replacing any with the same name, and its list schemas replace the
// built-in default when present. An empty path yields Builtin().
func LoadFile(path string) (*File, error) {
	base := Builtin()
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(raw, base)
}

// Parse decodes YAML on top of base.
func Parse(raw []byte, base *File) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	out := &File{ListSchemas: base.ListSchemas}

	byName := make(map[string]int)
	for _, c := range base.Columns {
		n, err := c.normalize()
		if err != nil {
			return nil, err
		}
		byName[n.Name] = len(out.Columns)
		out.Columns = append(out.Columns, n)
	}
	for _, c := range f.Columns {
		n, err := c.normalize()
		if err != nil {
			return nil, err
		}
		if i, ok := byName[n.Name]; ok {
			out.Columns[i] = n
			continue
		}
		byName[n.Name] = len(out.Columns)
		out.Columns = append(out.Columns, n)
	}

	if len(f.ListSchemas.Default) > 0 {
		out.ListSchemas.Default = f.ListSchemas.Default
	}
	if len(f.ListSchemas.Tags) > 0 {
		out.ListSchemas.Tags = f.ListSchemas.Tags
	}
	return out, nil
}
