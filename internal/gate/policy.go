// Package gate runs the external validation suite and reduces its summary
// artifact to a pass/fail result.
package gate

import "fmt"

// Policy decides how a validation summary is judged.
type Policy struct {
	// StrictAll requires exit code 0 and a 100% pass rate.
	StrictAll bool `yaml:"strict_all" json:"strict_all"`

	// MinPassRatio is the minimum passed/total ratio in non-strict mode, in [0,1].
	MinPassRatio float64 `yaml:"min_pass_ratio" json:"min_pass_ratio"`

	// AllowDegraded accepts a non-strict pass even when some phases failed.
	AllowDegraded bool `yaml:"allow_degraded" json:"allow_degraded"`
}

// DefaultPolicy returns StrictAll=false, MinPassRatio=0.7, AllowDegraded=true.
func DefaultPolicy() Policy {
	return Policy{
		StrictAll:     false,
		MinPassRatio:  0.7,
		AllowDegraded: true,
	}
}

// Validate rejects a MinPassRatio outside [0,1].
func (p Policy) Validate() error {
	if p.MinPassRatio < 0 || p.MinPassRatio > 1 {
		return fmt.Errorf("gate: min_pass_ratio %v outside [0,1]", p.MinPassRatio)
	}
	return nil
}
