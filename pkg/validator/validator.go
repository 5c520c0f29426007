// Package validator holds the custom validator/v10 rules used in binding tags.
package validator

import (
	"regexp"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 -]{6,18}[0-9]$`)

// Rules maps tag names to validation funcs.
func Rules() map[string]validator.Func {
	return map[string]validator.Func{
		"clock":     isClock,
		"civildate": isCivilDate,
		"month":     isMonth,
		"phone":     isPhone,
	}
}

// Register installs Rules on v.
func Register(v *validator.Validate) error {
	for tag, fn := range Rules() {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func isClock(fl validator.FieldLevel) bool {
	_, err := model.ParseClock(fl.Field().String())
	return err == nil
}

func isCivilDate(fl validator.FieldLevel) bool {
	_, err := civil.ParseDate(fl.Field().String())
	return err == nil
}

func isMonth(fl validator.FieldLevel) bool {
	_, err := model.ParseMonth(fl.Field().String())
	return err == nil
}

func isPhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}
