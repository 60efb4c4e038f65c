package handler

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared across handlers; go-playground/validator's
// Validate type is safe for concurrent use once constructed. Field
// errors are keyed by each struct field's json tag rather than its Go
// name, so the same key works for an HTML form field and a JSON body.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// signUpRequest is the validated shape of a sign-up submission, from
// either the browser form or the JSON API.
type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=200"`
}

// signInRequest is the validated shape of a sign-in submission.
type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// changePasswordRequest validates an authenticated password change.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// requestPasswordResetRequest validates a reset request.
type requestPasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// resetPasswordRequest validates a reset submission. The field is
// named "password" rather than "newPassword" since this form has no
// current password to disambiguate against.
type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"password" validate:"required,min=8,max=72"`
}

// fieldErrors turns a validator.ValidationErrors into a flat
// field-name -> message map suitable for form re-rendering or a JSON
// field-errors document.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = "invalid request"
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldErrorMessage(fe)
	}
	return out
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
