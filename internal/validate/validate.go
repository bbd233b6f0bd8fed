// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package validate adapts go-playground/validator to echo's Validator
// interface with English messages keyed by request field name.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"codeberg.org/oliverandrich/voiceauth/internal/models"
)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// Validator implements echo.Validator.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// ValidationError maps request field names to messages.
type ValidationError map[string]string

func (ve ValidationError) Error() string {
	if len(ve) == 0 {
		return "validation error"
	}
	b, err := json.Marshal(ve)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Summary joins the messages in field order.
func (ve ValidationError) Summary() string {
	keys := make([]string, 0, len(ve))
	for k := range ve {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, ve[k])
	}
	return strings.Join(msgs, "; ")
}

// New builds a Validator with English translations and the authmethod rule.
func New() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}
	if err := registerAuthMethod(v, trans); err != nil {
		return nil, err
	}

	return &Validator{validate: v, translator: trans}, nil
}

// Validate validates a struct and returns a ValidationError on failure.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

// fieldName reports the json or form tag so messages use wire names.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func registerAuthMethod(v *validator.Validate, trans ut.Translator) error {
	err := v.RegisterValidation("authmethod", func(fl validator.FieldLevel) bool {
		_, err := models.ParseAuthMethod(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return err
	}

	return v.RegisterTranslation("authmethod", trans,
		func(ut ut.Translator) error {
			return ut.Add("authmethod", "{0} must be one of otp, voice", false)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, err := ut.T(fe.Tag(), fe.Field())
			if err != nil {
				return fe.Error()
			}
			return t
		},
	)
}
