package dispatcher

import (
	"context"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

// StubTool satisfies the Tool contract for a downstream tool that is
// out of scope for this module (vector-document retrieval, REST
// invocation). Only the interface the dispatcher expects is specified;
// no backing implementation is wired.
type StubTool struct {
	Name string
}

func (s StubTool) Run(ctx context.Context, query string, opts ToolOptions) (routerdomain.ToolResult, routerdomain.Usage, error) {
	return routerdomain.ToolResult{
		Notes: s.Name + " tool has no backing implementation configured",
	}, routerdomain.Usage{}, nil
}
