package templates

import (
	"io"

	"github.com/labstack/echo/v4"
)

// Renderer adapts a Set to echo.Renderer so handlers can call c.Render.
type Renderer struct {
	Set *Set
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.Set.Render(w, name, data)
}
