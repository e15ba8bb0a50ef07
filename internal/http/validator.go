package http

import (
	"github.com/go-playground/validator/v10"
)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (r *requestValidator) Validate(i any) error {
	return r.v.Struct(i)
}
