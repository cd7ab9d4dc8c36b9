package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// FieldError describes one failed field rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned by Struct when one or more fields fail validation
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator validates request structs using `validate` tags. Field names in
// messages follow the json tag so they match what clients sent.
type Validator struct {
	validate *playground.Validate
	phone    *PhoneValidator
}

// New creates a Validator with the custom "phone" rule registered
func New() *Validator {
	v := &Validator{
		validate: playground.New(),
		phone:    NewPhoneValidator(),
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func
	_ = v.validate.RegisterValidation("phone", func(fl playground.FieldLevel) bool {
		return v.phone.IsValid(fl.Field().String())
	})

	return v
}

// Struct validates s and returns *Error describing every failed field
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return out
}

// Phone exposes the phone validator for sanitizing stored numbers
func (v *Validator) Phone() *PhoneValidator {
	return v.phone
}

// fieldPath drops the root struct name from the namespace
func fieldPath(fe playground.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe playground.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "phone":
		return fmt.Sprintf("%s must be a valid phone number", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
