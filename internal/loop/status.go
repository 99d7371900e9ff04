// Package loop implements the iteration controller and the run
// orchestrator: build, route, execute, handle, write back, track,
// then decide continue or halt.
package loop

import "time"

// Status is the run state machine. All non-Running states are
// terminal.
type Status string

const (
	StatusRunning            Status = "running"
	StatusSucceeded          Status = "succeeded"
	StatusFailed             Status = "failed"
	StatusStoppedByLimit     Status = "stopped_by_limit"
	StatusStoppedByCondition Status = "stopped_by_condition"
)

// Terminal reports whether no transitions leave this status.
func (s Status) Terminal() bool { return s != StatusRunning }

// Config is the replayable run configuration. It is recorded as the
// run's config event and restored verbatim on resume. A zero
// TokenBudget leaves instruction history untrimmed.
type Config struct {
	MaxIterations      int     `json:"max_iterations"`
	RetryBudget        int     `json:"retry_budget"`
	CallTimeoutSeconds int     `json:"call_timeout_seconds"`
	TokenBudget        int     `json:"token_budget,omitempty"`
	StopExpression     string  `json:"stop_expression,omitempty"`
	Scorer             string  `json:"scorer,omitempty"`
	SkillThreshold     float64 `json:"skill_threshold,omitempty"`
	ToolRatePerSecond  float64 `json:"tool_rate_per_second,omitempty"`
	Verbose            bool    `json:"verbose,omitempty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      10,
		RetryBudget:        2,
		CallTimeoutSeconds: 60,
	}
}

// CallTimeout returns the per-call deadline as a duration.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}
