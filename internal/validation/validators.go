package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/benvon/authgate/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validate is a shared validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("origin", validateOrigin); err != nil {
		panic(fmt.Sprintf("failed to register origin validator: %v", err))
	}
}

// validateOrigin validates a bare scheme://host[:port] origin
func validateOrigin(fl validator.FieldLevel) bool {
	return IsOrigin(fl.Field().String())
}

// IsOrigin reports whether s is a bare http(s) origin without path, query or fragment.
func IsOrigin(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && (u.Path == "" || u.Path == "/") && u.RawQuery == "" && u.Fragment == ""
}

// SameOrigin reports whether target is an absolute URL on the given origin.
func SameOrigin(target, origin string) bool {
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Scheme, o.Scheme) && strings.EqualFold(t.Host, o.Host)
}

// ValidateIdentity checks that a resolved provider identity is usable for login.
func ValidateIdentity(identity *models.ProviderIdentity) error {
	if identity == nil {
		return fmt.Errorf("identity is nil")
	}
	if err := Validate.Struct(identity); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}
	return nil
}
