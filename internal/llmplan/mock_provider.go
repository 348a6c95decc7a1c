package llmplan

import (
	"context"
	"time"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// MockProvider is a deterministic, in-memory Provider for tests. The
// zero value holds an empty PlannedOutput, which fails ValidateSchema,
// so Complete returns a planning error; NewMockProvider and the With*
// builders configure other outcomes.
type MockProvider struct {
	model   string
	output  PlannedOutput
	usage   routerdomain.Usage
	err     error
	delay   time.Duration
	calls   int
}

// NewMockProvider builds a MockProvider returning a valid plan by default.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		model: "mock-planner",
		output: PlannedOutput{
			SQL:         "SELECT 1 FROM sales_fact LIMIT 100",
			Confidence:  0.95,
			Explanation: "mock plan",
		},
		usage: routerdomain.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// WithResponse configures the PlannedOutput and Usage returned on Complete.
func (m *MockProvider) WithResponse(out PlannedOutput, usage routerdomain.Usage) *MockProvider {
	m.output, m.usage, m.err = out, usage, nil
	return m
}

// WithPlanningError makes Complete return a planning-kind error.
func (m *MockProvider) WithPlanningError(message string) *MockProvider {
	m.err = routererr.New(routererr.KindPlanning, message)
	return m
}

// WithTimeout makes Complete wait delay before answering. It returns a
// timeout error when ctx ends first or when delay is at least the
// caller's timeout; a shorter delay only slows the normal response.
func (m *MockProvider) WithTimeout(delay time.Duration) *MockProvider {
	m.delay = delay
	return m
}

// WithModel overrides the reported model name.
func (m *MockProvider) WithModel(name string) *MockProvider {
	m.model = name
	return m
}

// Calls reports how many times Complete has been invoked.
func (m *MockProvider) Calls() int { return m.calls }

func (m *MockProvider) ModelName() string { return m.model }

func (m *MockProvider) Complete(ctx context.Context, prompt string, timeout time.Duration) (PlannedOutput, routerdomain.Usage, error) {
	m.calls++

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindTimeout, "planner call exceeded timeout").WithCause(ctx.Err())
		}
		if timeout > 0 && m.delay >= timeout {
			return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindTimeout, "planner call exceeded timeout")
		}
	}

	if m.err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, m.err
	}

	if err := ValidateSchema(m.output); err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner output failed schema validation").WithCause(err)
	}

	return m.output, m.usage, nil
}
