// Package policy loads the admission policy file and turns it into an
// admission.Policy plus the decoder settings that travel with it.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/alert"
	"github.com/ppiankov/typegate/internal/ratelimit"
	"github.com/ppiankov/typegate/internal/sample"
)

// JSONSettings configures the polymorphic JSON decoder.
type JSONSettings struct {
	TypeProperty string `yaml:"type_property" json:"type_property" validate:"required,max=128" jsonschema:"description=Property that carries the type identifier,default=@type"`
}

// YAMLSettings configures the YAML tag decoder.
type YAMLSettings struct {
	RootType string `yaml:"root_type" json:"root_type" validate:"required,max=512" jsonschema:"description=Type an untagged document root binds to"`
}

// Limits bounds what a single request may consume.
type Limits struct {
	MaxDepth        int             `yaml:"max_depth" json:"max_depth" validate:"min=1,max=1024" jsonschema:"description=Maximum nesting depth,default=32"`
	MaxPayloadBytes int64           `yaml:"max_payload_bytes" json:"max_payload_bytes" validate:"min=1" jsonschema:"description=Maximum request body size in bytes,default=1048576"`
	Rate            ratelimit.Limit `yaml:"rate,omitempty" json:"rate,omitempty" jsonschema:"description=Per-client request budget on the HTTP decode routes"`
}

// Config is the on-disk policy file.
type Config struct {
	Allow  []string            `yaml:"allow" json:"allow" validate:"dive,required,max=514" jsonschema:"description=Exact types or namespaces (ns.* or ns.) that may be constructed"`
	Deny   []string            `yaml:"deny" json:"deny,omitempty" validate:"dive,required,max=514" jsonschema:"description=Entries rejected even when an allow entry matches"`
	JSON   JSONSettings        `yaml:"json" json:"json"`
	YAML   YAMLSettings        `yaml:"yaml" json:"yaml"`
	Limits Limits              `yaml:"limits" json:"limits"`
	Alerts []alert.AlertConfig `yaml:"alerts,omitempty" json:"alerts,omitempty" validate:"dive" jsonschema:"description=Webhooks notified of admission decisions"`
}

// Defaults.
const (
	DefaultMaxDepth        = 32
	DefaultMaxPayloadBytes = 1 << 20
	DefaultTypeProperty    = "@type"
)

// DefaultConfig admits the sample safe namespace and nothing else.
func DefaultConfig() *Config {
	return &Config{
		Allow: []string{sample.SafeNamespace + ".*"},
		Deny:  []string{},
		JSON:  JSONSettings{TypeProperty: DefaultTypeProperty},
		YAML:  YAMLSettings{RootType: sample.SafeClassName},
		Limits: Limits{
			MaxDepth:        DefaultMaxDepth,
			MaxPayloadBytes: DefaultMaxPayloadBytes,
		},
	}
}

// DefaultPath returns ~/.typegate/policy.yaml, or "" when there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".typegate", "policy.yaml")
}

// LoadConfig loads the policy file at path.
// Empty path falls back to ~/.typegate/policy.yaml.
// Missing file returns defaults. Invalid YAML or an invalid entry returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads the policy file and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashBytes(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashBytes(data), nil
}

// Parse decodes and validates policy YAML. Fields the document omits keep
// their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildPolicy compiles the allow and deny entries into an admission.Policy.
func (c *Config) BuildPolicy(hash string) (*admission.Policy, error) {
	p, err := admission.NewPolicy(c.Allow, c.Deny, hash)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// HashBytes returns the policy hash of raw file content.
func HashBytes(data []byte) string {
	return hashBytes(data)
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# typegate policy configuration
# Generated by: typegate init-policy
#
# Evaluation order (cannot be changed):
#   1. Malformed identifier -> reject
#   2. Deny entry matches -> reject
#   3. Exact allow entry -> admit
#   4. Allowed namespace, matched at a segment boundary -> admit
#   5. Anything else -> reject

# Types that may be constructed.
#   io.typegate.safe.SafeClass   exact type
#   io.typegate.safe.*           every type under io.typegate.safe
#                                (not io.typegate.safex.Evil)
allow:
  - "io.typegate.safe.*"

# Entries rejected even when an allow entry matches. Same syntax as allow.
deny: []

json:
  # Property that carries the type identifier in JSON payloads.
  type_property: "@type"

yaml:
  # Type an untagged document root binds to on the secure endpoint.
  # It is still checked against the allow-list.
  root_type: io.typegate.safe.SafeClass

limits:
  max_depth: 32
  max_payload_bytes: 1048576
  # Per-client budget on the HTTP decode routes. Omit to disable.
  # rate:
  #   max_requests: 60
  #   window: 1m

# Webhooks notified of decisions. Events: admit, reject, error.
# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack        # generic | slack | pagerduty
#     events: [reject]
`
}
