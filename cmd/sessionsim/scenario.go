package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one scripted action in a scenario.
type Step struct {
	Action   string `yaml:"action"`
	Count    int    `yaml:"count,omitempty"`    // samples
	Peak     int    `yaml:"peak,omitempty"`     // rep
	Valley   int    `yaml:"valley,omitempty"`   // rep
	Set      int    `yaml:"set,omitempty"`      // set_complete / start_set
	Duration string `yaml:"duration,omitempty"` // wait, e.g. "500ms"
	State    string `yaml:"state,omitempty"`    // expect
}

// WaitDuration parses the step's duration, defaulting when unset.
func (s *Step) WaitDuration(fallback time.Duration) (time.Duration, error) {
	if s.Duration == "" {
		return fallback, nil
	}
	return time.ParseDuration(s.Duration)
}

// Scenario is a scripted session run against in-process fake collaborators.
type Scenario struct {
	Name       string  `yaml:"name"`
	Exercise   string  `yaml:"exercise"`
	FinalState string  `yaml:"final_state,omitempty"`
	Countdown  string  `yaml:"countdown,omitempty"`
	Steps      []*Step `yaml:"steps"`
}

// CountdownDuration parses the scenario's resume countdown override.
func (s *Scenario) CountdownDuration(fallback time.Duration) (time.Duration, error) {
	if s.Countdown == "" {
		return fallback, nil
	}
	return time.ParseDuration(s.Countdown)
}

var validActions = map[string]bool{
	"start":        true,
	"samples":      true,
	"rep":          true,
	"start_set":    true,
	"set_complete": true,
	"offline":      true,
	"online":       true,
	"link_drop":    true,
	"link_restore": true,
	"reconnect":    true,
	"cancel":       true,
	"keep":         true,
	"discard":      true,
	"complete":     true,
	"wait":         true,
	"expect":       true,
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario file: %w", err)
	}
	if scenario.Name == "" {
		return nil, fmt.Errorf("scenario name required")
	}
	if scenario.Exercise == "" {
		return nil, fmt.Errorf("scenario exercise required")
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario steps required")
	}
	for i, step := range scenario.Steps {
		if !validActions[step.Action] {
			return nil, fmt.Errorf("step %d: unknown action %q", i+1, step.Action)
		}
	}
	return &scenario, nil
}
