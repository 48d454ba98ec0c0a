package schema

import (
	"fmt"
)

// ColumnContext is what list templates see for each column.
type ColumnContext struct {
	Name               string  `json:"name"`
	Title              string  `json:"title"`
	Single             bool    `json:"single"`
	Icon               string  `json:"icon"`
	ListLimit          *int    `json:"list_limit"`
	BatchTemplate      *string `json:"batch_template"`
	TemplatePath       string  `json:"template_path"`
	DetailTemplatePath string  `json:"detail_template_path"`
	HeaderTemplatePath string  `json:"header_template_path"`
}

// BuildColumnContext resolves the templates for each column. A missing
// display or detail template is an error; a missing header is left empty.
func BuildColumnContext(columns []Column, sel Selector, tag, subtag string) ([]ColumnContext, error) {
	out := make([]ColumnContext, 0, len(columns))
	for _, c := range columns {
		cc := ColumnContext{
			Name:          c.Name,
			Title:         c.DisplayTitle(),
			Single:        c.Single,
			Icon:          c.Icon,
			ListLimit:     c.ListLimit,
			BatchTemplate: c.BatchTemplate,
		}

		var err error
		cc.TemplatePath, err = c.DisplayTemplate(sel, tag, subtag)
		if err != nil {
			return nil, fmt.Errorf("column %s display: %w", c.Name, err)
		}

		cc.DetailTemplatePath, err = sel.Select(
			c.Name+"_detail.html",
			c.Name+".html",
			"records/"+c.Name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("column %s detail: %w", c.Name, err)
		}

		headers := []string{c.Name + "_header.html"}
		if tag != "" {
			headers = append([]string{"list_display/" + tag + "/" + c.Name + "_header.html"}, headers...)
			if subtag != "" {
				headers = append([]string{"list_display/" + tag + "/" + subtag + "/" + c.Name + "_header.html"}, headers...)
			}
		}
		if cc.HeaderTemplatePath, err = sel.Select(headers...); err != nil {
			cc.HeaderTemplatePath = ""
		}

		out = append(out, cc)
	}
	return out, nil
}
