package llmplan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
	"github.com/acme-corp/enterprise-tool-router/internal/tlsutil"
)

// Config configures an HTTP-backed, OpenAI-compatible Provider.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	EndpointPath string
	Timeout      time.Duration
}

// HTTPProvider calls an OpenAI-compatible chat completion endpoint and
// parses the assistant message as a PlannedOutput object.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProvider builds an HTTPProvider, defaulting Timeout and
// EndpointPath the way the teacher's OpenAI-compatible base does.
func NewHTTPProvider(cfg Config, logger *zap.Logger) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "llmplan")),
	}
}

func (p *HTTPProvider) ModelName() string { return p.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// Complete sends prompt as a single user message and parses the
// response content as a PlannedOutput, validating it against the
// C3 schema before returning.
func (p *HTTPProvider) Complete(ctx context.Context, prompt string, timeout time.Duration) (PlannedOutput, routerdomain.Usage, error) {
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody := chatRequest{
		Model:          p.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "failed to encode planner request").WithCause(err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "failed to build planner request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindTimeout, "planner call exceeded timeout").WithCause(err)
		}
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner call failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner backend returned an error status").
			WithDetail("status_code", resp.StatusCode).
			WithCause(fmt.Errorf("%s", string(body)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "failed to decode planner response").WithCause(err)
	}
	if len(cr.Choices) == 0 {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner response contained no choices")
	}

	var out PlannedOutput
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &out); err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner response was not valid JSON").WithCause(err)
	}

	if err := ValidateSchema(out); err != nil {
		return PlannedOutput{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, "planner output failed schema validation").WithCause(err)
	}

	tokensIn, tokensOut := cr.Usage.PromptTokens, cr.Usage.CompletionTokens
	if tokensIn == 0 && tokensOut == 0 {
		// Some OpenAI-compatible backends omit the usage block entirely;
		// estimate from the raw text so cost tracking never silently reads zero.
		tokensIn = EstimateTokens(p.cfg.Model, prompt)
		tokensOut = EstimateTokens(p.cfg.Model, cr.Choices[0].Message.Content)
	}

	usage := routerdomain.Usage{
		InputTokens:      tokensIn,
		OutputTokens:     tokensOut,
		EstimatedCostUSD: EstimateCostUSD(p.cfg.Model, tokensIn, tokensOut),
	}
	return out, usage, nil
}
