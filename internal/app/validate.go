package app

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var tagColorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{6}|#[0-9a-fA-F]{3}|\w+)$`)

type inputValidator struct {
	*validator.Validate
	translator ut.Translator
}

func newValidator() *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("tagcolor", func(fl validator.FieldLevel) bool {
		return tagColorPattern.MatchString(fl.Field().String())
	})

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)
	_ = v.RegisterTranslation("tagcolor", translator, func(t ut.Translator) error {
		return t.Add("tagcolor", "{0} must be a hex color like #1a2b3c or a color name", true)
	}, func(t ut.Translator, fe validator.FieldError) string {
		msg, _ := t.T("tagcolor", fe.Field())
		return msg
	})

	return &inputValidator{Validate: v, translator: translator}
}

// check validates input and reports every failing field as InvalidInput.
func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidInput("Invalid input", nil)
	}
	fields := make(map[string]string, len(fieldErrs))
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fe.Translate(s.validate.translator)
		fields[fe.Field()] = msg
		messages = append(messages, msg)
	}
	return invalidInput(strings.Join(messages, "; "), map[string]any{"fields": fields})
}
