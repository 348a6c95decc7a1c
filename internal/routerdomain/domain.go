// Package routerdomain holds the value types shared by the planner,
// cache, history, and dispatcher: Plan, Usage, ToolResult, and the
// Routed envelope returned to callers.
package routerdomain

// Plan is the immutable output of a successful planner call. It is
// created once and never mutated.
type Plan struct {
	SQL         string  `json:"sql"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Usage tracks token counts and estimated cost for one provider call.
// Cache and history hits carry a zero Usage.
type Usage struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// TotalTokens returns InputTokens + OutputTokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ToolResult is the data a tool's run operation returns to the dispatcher.
type ToolResult struct {
	Data         any    `json:"data"`
	Notes        string `json:"notes"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
	CostUSD      float64 `json:"cost_usd"`
}

// Routed is the envelope returned for one dispatched query.
type Routed struct {
	Tool          string     `json:"tool"`
	Confidence    float64    `json:"confidence"`
	Result        ToolResult `json:"result"`
	CorrelationID string     `json:"correlation_id"`
	ElapsedMS     int64      `json:"elapsed_ms"`
	TokensInput   int        `json:"tokens_input"`
	TokensOutput  int        `json:"tokens_output"`
	CostUSD       float64    `json:"cost_usd"`
}

// SQLResult is the data shape for a successful SQL tool execution.
type SQLResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}
