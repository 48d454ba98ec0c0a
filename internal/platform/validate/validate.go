// Package validate wraps go-playground/validator with the tags used by
// request structs in this module.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayouts are the accepted input forms for dates, ISO first.
var DateLayouts = []string{"2006-01-02", "02/01/2006"}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("tracker_date", validateDate)
	return &Validator{validate: v}
}

// Register adds a custom tag.
func (v *Validator) Register(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

// Validate satisfies echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s does not match", field)
	case "tracker_date":
		return fmt.Sprintf("%s must be a date like 2006-01-02 or 02/01/2006", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func validateDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := ParseDate(s)
	return err == nil
}

// ParseDate reads a date in any of DateLayouts.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
