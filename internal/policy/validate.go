package policy

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/typegate/internal/admission"
)

var validate = validator.New()

// Validate checks field constraints, then that every allow and deny entry is
// a well-formed type or namespace, that root_type is a valid identifier and
// that a rate budget has a window.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	var errs []error
	for i, e := range c.Allow {
		if _, err := admission.ParsePattern(e); err != nil {
			errs = append(errs, fmt.Errorf("allow[%d]: %w", i, err))
		}
	}
	for i, e := range c.Deny {
		if _, err := admission.ParsePattern(e); err != nil {
			errs = append(errs, fmt.Errorf("deny[%d]: %w", i, err))
		}
	}
	if !admission.ValidIdentifier(c.YAML.RootType) {
		errs = append(errs, fmt.Errorf("yaml.root_type: %q is not a valid type identifier", c.YAML.RootType))
	}
	if r := c.Limits.Rate; r.MaxRequests > 0 && r.Window <= 0 {
		errs = append(errs, fmt.Errorf("limits.rate.window: must be positive when max_requests is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy validation failed: %w", errors.Join(errs...))
	}
	return nil
}
