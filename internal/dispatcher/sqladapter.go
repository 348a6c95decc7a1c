package dispatcher

import (
	"context"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/sqltool"
)

// SQLToolAdapter narrows internal/sqltool.Tool's richer SQLResult
// return to the dispatcher's generic Tool contract.
type SQLToolAdapter struct {
	tool *sqltool.Tool
}

// NewSQLToolAdapter wraps tool as a dispatcher Tool.
func NewSQLToolAdapter(tool *sqltool.Tool) *SQLToolAdapter {
	return &SQLToolAdapter{tool: tool}
}

func (a *SQLToolAdapter) Run(ctx context.Context, query string, opts ToolOptions) (routerdomain.ToolResult, routerdomain.Usage, error) {
	result, usage, err := a.tool.Run(ctx, query, sqltool.RunOptions{
		CorrelationID: opts.CorrelationID,
		UserID:        opts.UserID,
		BypassCache:   opts.BypassCache,
		Timeout:       opts.Timeout,
		Retention:     opts.Retention,
	})
	if err != nil {
		return routerdomain.ToolResult{}, routerdomain.Usage{}, err
	}
	return routerdomain.ToolResult{
		Data:         result,
		TokensInput:  usage.InputTokens,
		TokensOutput: usage.OutputTokens,
		CostUSD:      usage.EstimatedCostUSD,
	}, usage, nil
}
