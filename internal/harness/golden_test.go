package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/probelab/sagaprobe/internal/effect"
)

// The rendered diagnostic is part of the tool's user interface; pin it.
func TestUnmetExpectationErrorRendering(t *testing.T) {
	exp := Expectation{
		Label:    `dispatch "order.created"`,
		Category: effect.CategoryDispatch,
		Value: effect.Dispatch{Message: effect.Message{
			Type:    "order.created",
			Payload: map[string]any{"id": 1},
		}},
	}
	remaining := []any{
		effect.Dispatch{Message: effect.Message{Type: "order.failed"}},
		effect.Dispatch{Message: effect.Message{
			Type:    "order.created",
			Payload: map[string]any{"id": 2},
		}},
	}

	err := newUnmetExpectation(exp, remaining)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "unmet_expectation", []byte(err.Error()))
}
