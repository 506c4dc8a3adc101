// Package ratelimit enforces fixed-window request budgets per client.
package ratelimit

import "time"

// Limit is a fixed-window request budget.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests" validate:"min=0" jsonschema:"description=Requests allowed per client per window; 0 disables limiting"`
	Window      time.Duration `yaml:"window" json:"window" jsonschema:"description=Window length as a Go duration string e.g. 1m"`
}

// Enabled returns true if the limit has both a request budget and a window.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
