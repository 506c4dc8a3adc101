package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/policy"
)

var validate = validator.New()

// Run evaluates all cases in a scenario against checker. Cases are independent.
func Run(s *Scenario, checker admission.Checker) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		d := checker.Evaluate(c.Type)

		expected := c.Expect
		actual := string(d.Verdict)
		passed := actual == expected
		if c.Kind != "" {
			expected += " (" + c.Kind + ")"
			if d.Kind != admission.KindNone {
				actual += " (" + string(d.Kind) + ")"
			}
			passed = passed && string(d.Kind) == c.Kind
		}

		cr := CaseResult{
			Index:    i + 1,
			Type:     c.Type,
			Expected: expected,
			Actual:   actual,
			Reason:   d.Reason,
			Passed:   passed,
		}
		if passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the policy it names (or policyPath),
// then runs it.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	if s.Policy != "" {
		policyPath = s.Policy
		if !filepath.IsAbs(policyPath) {
			policyPath = filepath.Join(filepath.Dir(path), policyPath)
		}
	}
	cfg, hash, err := policy.LoadConfigWithHash(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	p, err := cfg.BuildPolicy(hash)
	if err != nil {
		return nil, err
	}

	result := Run(s, p)
	result.File = path
	result.PolicyHash = hash
	return result, nil
}
