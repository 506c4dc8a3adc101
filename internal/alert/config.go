package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"               json:"url"               validate:"required,url"`
	Format  string            `yaml:"format,omitempty"  json:"format,omitempty"  validate:"omitempty,oneof=generic slack pagerduty"`
	Events  []string          `yaml:"events"            json:"events"            validate:"required,min=1,dive,oneof=admit reject error"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id"`
	Source     string `json:"source,omitempty"`
	Format     string `json:"format,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Type       string `json:"type"`
	Decision   string `json:"decision"`
	Kind       string `json:"kind,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
	PolicyHash string `json:"policy_hash"`
}
