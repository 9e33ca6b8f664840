// Package validation provides the struct validator shared by persisted CLI files.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"conduit/internal/versionutil"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared instance with the custom "releasetag" rule registered.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("releasetag", validateReleaseTag)
	})
	return validate
}

func validateReleaseTag(fl validator.FieldLevel) bool {
	_, err := versionutil.ParseTag(fl.Field().String())
	return err == nil
}

// Struct validates s and flattens field errors into a readable message.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid %s", strings.Join(msgs, ", "))
}
