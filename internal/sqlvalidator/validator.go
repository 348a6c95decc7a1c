// Package sqlvalidator is the deterministic, final-authority gate over
// any SQL string before it reaches the database — whether the SQL came
// from a user directly or was generated by the LLM planner.
package sqlvalidator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// DefaultAllowedTables is the table allow-list used when none is configured.
var DefaultAllowedTables = []string{"sales_fact", "job_runs", "audit_log"}

// DefaultLimit is the LIMIT value appended when the SQL has none.
const DefaultLimit = 200

var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "COPY",
}

var wordRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// limitRe finds a word-bounded LIMIT token followed by a positive integer.
var limitRe = regexp.MustCompile(`(?i)\bLIMIT\s+([0-9]+)\b`)

// fromJoinTableRe captures the identifier immediately following FROM/JOIN.
var fromJoinTableRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+` + "`" + `?"?\[?([A-Za-z_][A-Za-z0-9_.]*)` + "`" + `?"?\]?`)

// Config configures the validator's allow-list and default LIMIT.
type Config struct {
	AllowedTables []string
	DefaultLimit  int
}

// DefaultConfig returns the spec's default validator configuration.
func DefaultConfig() Config {
	return Config{AllowedTables: DefaultAllowedTables, DefaultLimit: DefaultLimit}
}

// Validator applies the ordered safety rules from spec §4.4.
type Validator struct {
	allowed      map[string]struct{}
	defaultLimit int
}

// New builds a Validator from cfg, falling back to DefaultConfig values
// for any zero field.
func New(cfg Config) *Validator {
	def := DefaultConfig()
	if len(cfg.AllowedTables) == 0 {
		cfg.AllowedTables = def.AllowedTables
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTables))
	for _, t := range cfg.AllowedTables {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &Validator{allowed: allowed, defaultLimit: cfg.DefaultLimit}
}

// Validate applies the rules in order and returns the sanitized SQL, or
// a validation error naming the violated rule.
func (v *Validator) Validate(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)

	if trimmed == "" {
		return "", routererr.New(routererr.KindValidation, "SQL must not be empty")
	}

	if !startsWithSelect(trimmed) {
		return "", routererr.New(routererr.KindValidation, "SQL must begin with SELECT").
			WithDetail("rule", "select_only")
	}

	if strings.Contains(trimmed, ";") {
		return "", routererr.New(routererr.KindValidation, "SQL must not contain ';' (multi-statement)").
			WithDetail("rule", "no_semicolon")
	}

	if kw, ok := containsForbiddenKeyword(trimmed); ok {
		return "", routererr.New(routererr.KindValidation, "SQL contains a forbidden keyword").
			WithDetail("rule", "forbidden_keyword").
			WithDetail("keyword", kw)
	}

	if table, ok := v.firstDisallowedTable(trimmed); ok {
		return "", routererr.New(routererr.KindValidation, "SQL references a table outside the allow-list").
			WithDetail("rule", "table_allowlist").
			WithDetail("table", table)
	}

	return v.ensureLimit(trimmed), nil
}

func startsWithSelect(sql string) bool {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return false
	}
	return strings.EqualFold(fields[0], "SELECT")
}

func containsForbiddenKeyword(sql string) (string, bool) {
	for _, word := range wordRe.FindAllString(sql, -1) {
		upper := strings.ToUpper(word)
		for _, kw := range forbiddenKeywords {
			if upper == kw {
				return kw, true
			}
		}
	}
	return "", false
}

func (v *Validator) firstDisallowedTable(sql string) (string, bool) {
	matches := fromJoinTableRe.FindAllStringSubmatch(sql, -1)
	for _, m := range matches {
		table := strings.ToLower(m[1])
		if _, ok := v.allowed[table]; !ok {
			return m[1], true
		}
	}
	return "", false
}

// ensureLimit preserves an existing valid LIMIT verbatim, or appends the
// configured default.
func (v *Validator) ensureLimit(sql string) string {
	if m := limitRe.FindStringSubmatch(sql); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return sql
		}
	}
	return strings.TrimRight(sql, " \t\n") + " LIMIT " + strconv.Itoa(v.defaultLimit)
}
