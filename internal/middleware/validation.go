package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/scheduler-api/pkg/httputil"
	customvalidator "github.com/jwalitptl/scheduler-api/pkg/validator"
)

// RegisterValidators installs the custom binding rules on gin's validator
// and reports fields by their json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	v.RegisterTagNameFunc(httputil.JSONTagName)
	return customvalidator.Register(v)
}
