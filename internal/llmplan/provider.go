// Package llmplan defines the planner's LLM capability boundary (C2)
// and the machine-checkable shape of its output (C3): given a prompt
// and a timeout, return a validated PlannedOutput and Usage, or a
// structured planning/timeout error.
//
// Prompts and completions are never logged verbatim; only derived
// hashes and token counts may be recorded by callers.
package llmplan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// PlannedOutput is the raw {sql, confidence, explanation} object an
// LLM call returns before validator involvement.
type PlannedOutput struct {
	SQL         string  `json:"sql"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Provider is the narrow capability the planner depends on.
type Provider interface {
	// Complete sends prompt to the backend and returns a schema-valid
	// PlannedOutput and its token usage, or a planning/timeout error.
	// Complete must not block the caller past timeout plus small slack.
	Complete(ctx context.Context, prompt string, timeout time.Duration) (PlannedOutput, routerdomain.Usage, error)

	// ModelName identifies the backend model for logging/metrics.
	ModelName() string
}

// ValidateSchema enforces C3: the object must be exactly
// {sql, confidence, explanation}, non-empty sql/explanation,
// confidence in [0,1], and sql must contain a word-bounded LIMIT
// token followed by a positive integer.
func ValidateSchema(out PlannedOutput) error {
	var bad []string

	if strings.TrimSpace(out.SQL) == "" {
		bad = append(bad, "sql")
	}
	if strings.TrimSpace(out.Explanation) == "" {
		bad = append(bad, "explanation")
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		bad = append(bad, "confidence")
	}
	if !hasPositiveLimit(out.SQL) {
		bad = append(bad, "sql")
	}

	if len(bad) > 0 {
		return routererr.New(routererr.KindValidation, "planner output failed schema validation").
			WithDetail("fields", dedupe(bad))
	}
	return nil
}

func dedupe(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func hasPositiveLimit(sql string) bool {
	upper := strings.ToUpper(sql)
	idx := 0
	for {
		rel := strings.Index(upper[idx:], "LIMIT")
		if rel < 0 {
			return false
		}
		pos := idx + rel
		if wordBounded(upper, pos, len("LIMIT")) {
			if n, ok := positiveIntAfter(sql, pos+len("LIMIT")); ok && n > 0 {
				return true
			}
		}
		idx = pos + len("LIMIT")
	}
}

func wordBounded(s string, start, length int) bool {
	if start > 0 && isWordByte(s[start-1]) {
		return false
	}
	end := start + length
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func positiveIntAfter(s string, pos int) (int, bool) {
	for pos < len(s) && s[pos] == ' ' {
		pos++
	}
	start := pos
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		pos++
	}
	if pos == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[start:pos])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HashPrompt returns a SHA-256 hex digest of prompt, suitable for
// logging in place of the prompt itself.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
