package llmplan

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// modelPrices holds USD-per-1K-token rates for known planner models.
// Unlisted models price at zero rather than erroring; cost tracking
// is best-effort, not a billing system.
var modelPrices = map[string]struct {
	input  float64
	output float64
}{
	"gpt-4o":        {input: 0.005, output: 0.015},
	"gpt-4o-mini":   {input: 0.00015, output: 0.0006},
	"gpt-4-turbo":   {input: 0.01, output: 0.03},
	"gpt-3.5-turbo": {input: 0.0005, output: 0.0015},
}

// EstimateCostUSD returns the estimated dollar cost of tokensIn/tokensOut
// against model's published per-1K-token rate.
func EstimateCostUSD(model string, tokensIn, tokensOut int) float64 {
	price, ok := modelPrices[strings.ToLower(model)]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1000*price.input + float64(tokensOut)/1000*price.output
}

// EstimateTokens counts prompt with the tokenizer for model, falling
// back to cl100k_base for unrecognized models. It exists for backends
// that omit a usage block in their response, where InputTokens would
// otherwise be reported as zero and understate EstimatedCostUSD.
func EstimateTokens(model, prompt string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}
	return len(enc.Encode(prompt, nil, nil))
}
