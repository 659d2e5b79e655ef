// Package scenario loads declarative run descriptions from YAML and
// turns them into expectations the harness or the trace checker can
// consume. Files are schema-validated with CUE before decoding, so a
// typo'd category or a missing task name fails with a schema error
// rather than a silent non-match.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/probelab/sagaprobe/internal/effect"
	"github.com/probelab/sagaprobe/internal/harness"
)

// Scenario describes one run: which task to start, what state and
// inputs to provide, and which effects must be observed.
type Scenario struct {
	// Name identifies the scenario in output and golden files.
	Name string `yaml:"name"`

	// Task is the registered root task to run.
	Task string `yaml:"task"`

	// Args are passed to the root task.
	Args []any `yaml:"args,omitempty"`

	// Timeout bounds the drain phase, e.g. "250ms". Empty means the
	// harness default; "0" waits unconditionally.
	Timeout string `yaml:"timeout,omitempty"`

	// State is what Query effects see.
	State map[string]any `yaml:"state,omitempty"`

	// Inputs are injected in order before the run starts.
	Inputs []InputSpec `yaml:"inputs,omitempty"`

	// Expectations are checked after the run stops, in order.
	Expectations []ExpectationSpec `yaml:"expectations"`
}

// InputSpec is one injected input message.
type InputSpec struct {
	Type    string `yaml:"type"`
	Payload any    `yaml:"payload,omitempty"`
}

// ExpectationSpec is one declared expectation: an effect of the given
// category whose payload matches Effect.
type ExpectationSpec struct {
	// Label names the expectation in diagnostics. Optional; defaults to
	// "<category> #<n>".
	Label string `yaml:"label,omitempty"`

	// Category is the effect category name, e.g. "dispatch".
	Category string `yaml:"category"`

	// Effect is the expected descriptor payload in its JSON field shape,
	// e.g. {message: {type: order.created}} for a dispatch.
	Effect map[string]any `yaml:"effect"`
}

// Load reads, schema-validates, and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	// Strict field validation catches typos like "expectation:" vs
	// "expectations:".
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if _, err := sc.StopTimeout(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// StopTimeout returns the drain timeout the scenario asks for.
func (s *Scenario) StopTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return harness.DefaultStopTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	return d, nil
}

// Ledger builds the harness ledger declared by the scenario.
// Expectation payloads are decoded into typed descriptors, so matching
// and diagnostics behave exactly as for expectations declared in Go.
func (s *Scenario) Ledger() (*harness.Ledger, error) {
	l := &harness.Ledger{}
	for i, e := range s.Expectations {
		cat, err := effect.ParseCategory(e.Category)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: %w", i+1, err)
		}

		data, err := json.Marshal(e.Effect)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: encode effect: %w", i+1, err)
		}
		val, err := effect.DecodeDescriptor(cat, data)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: %w", i+1, err)
		}

		label := e.Label
		if label == "" {
			label = fmt.Sprintf("%s #%d", e.Category, i+1)
		}
		l.Add(harness.Expectation{Label: label, Category: cat, Value: val})
	}
	return l, nil
}

// Apply transfers the scenario's state, inputs, and expectations onto a
// live harness. The harness should be constructed with
// harness.WithEqual(effect.CanonicalEqual): scenario payloads come from
// YAML, so structural equality against Go values is too strict.
func (s *Scenario) Apply(h *harness.Harness) error {
	if s.State != nil {
		h.ProvideState(s.State)
	}
	for _, in := range s.Inputs {
		h.InjectInput(effect.Message{Type: in.Type, Payload: in.Payload})
	}

	ledger, err := s.Ledger()
	if err != nil {
		return err
	}
	for _, exp := range ledger.All() {
		h.Expect(exp.Label, exp.Category, exp.Value)
	}
	return nil
}
