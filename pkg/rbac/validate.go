package rbac

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validatePayload runs struct tag validation and reports the first failing
// field as a ValidationError
func validatePayload(v *validator.Validate, payload interface{}) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.NewValidation("", "invalid request: %v", err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return apperrors.NewValidation(fe.Field(), "is required")
	case "max":
		return apperrors.NewValidation(fe.Field(), "must be at most %s", fe.Param())
	case "gt", "gte":
		return apperrors.NewValidation(fe.Field(), "must be positive")
	case "slug":
		return apperrors.NewValidation(fe.Field(), "must start with a lowercase letter and contain only a-z, 0-9, '_' or '-'")
	default:
		return apperrors.NewValidation(fe.Field(), "failed %s validation", fe.Tag())
	}
}

// Slugify derives a role slug from a display name
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug != "" && (slug[0] < 'a' || slug[0] > 'z') {
		slug = "role-" + slug
	}
	return slug
}
