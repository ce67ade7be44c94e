package auth

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "complex": at least one upper, lower, digit and symbol.
	_ = v.RegisterValidation("complex", func(fl validator.FieldLevel) bool {
		var classes uint8
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsUpper(r):
				classes |= 1
			case unicode.IsLower(r):
				classes |= 2
			case unicode.IsNumber(r):
				classes |= 4
			case unicode.IsPunct(r), unicode.IsSymbol(r):
				classes |= 8
			}
		}
		return classes == 15
	})
	return v
}

type RegisterRequest struct {
	Username string `validate:"required,min=3,max=32,alphanum"`
	Password string `validate:"required,min=12,max=72,complex"`
}

func ValidateRegister(req RegisterRequest) error {
	err := validate.Struct(req)
	var fields validator.ValidationErrors
	if stderrors.As(err, &fields) && len(fields) == 1 && fields[0].Tag() == "complex" {
		return errors.ErrInvalidPassword
	}
	return invalid(err)
}

// Struct validates any request carrying `validate` tags.
func Struct(v any) error {
	return invalid(validate.Struct(v))
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
}
