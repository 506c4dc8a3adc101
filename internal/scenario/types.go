// Package scenario runs policy assertion files: lists of type identifiers
// with the decision each must get. Use them in CI to gate policy changes.
package scenario

// Case is one assertion within a scenario.
type Case struct {
	Type   string `yaml:"type"`
	Expect string `yaml:"expect" validate:"required,oneof=admit reject"`
	// Kind optionally pins the rejection kind, e.g. denied or not_allowed.
	Kind string `yaml:"kind,omitempty" validate:"omitempty,oneof=malformed_type_identifier not_allowed denied policy_unavailable"`
}

// Scenario is a named collection of policy assertions.
type Scenario struct {
	Name string `yaml:"name" validate:"required"`
	// Policy overrides the policy path given on the command line. Relative
	// paths resolve against the scenario file's directory.
	Policy string `yaml:"policy,omitempty"`
	Cases  []Case `yaml:"cases" validate:"dive"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Type     string `json:"type"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   string `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File       string       `json:"file"`
	Name       string       `json:"name"`
	PolicyHash string       `json:"policy_hash,omitempty"`
	Total      int          `json:"total"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Cases      []CaseResult `json:"cases"`
}
