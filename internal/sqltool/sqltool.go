// Package sqltool is the SQL tool (C11): distinguishes raw SQL from a
// natural-language query, drives the planner and validator as needed,
// and executes the resulting SELECT against the relational store.
package sqltool

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/acme-corp/enterprise-tool-router/internal/planner"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
	"github.com/acme-corp/enterprise-tool-router/internal/sqlvalidator"

	"gorm.io/gorm"
)

// rawPrefixes are the statement keywords that mark a query as SQL a
// caller wrote directly, rather than natural language for the planner.
var rawPrefixes = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE",
	"ALTER", "TRUNCATE", "GRANT", "REVOKE", "WITH", "COPY",
}

// Config controls the tool's natural-language confidence gate.
type Config struct {
	ConfidenceThreshold float64
}

// DefaultConfig returns the spec's default confidence threshold.
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.7}
}

// Tool is the C11 SQL tool. Planner may be nil, in which case natural
// language queries degrade to a configuration error (raw SQL still works).
type Tool struct {
	cfg       Config
	planner   *planner.Planner
	validator *sqlvalidator.Validator
	db        *gorm.DB
}

// New builds a Tool. db is the shared relational pool's *gorm.DB.
func New(cfg Config, p *planner.Planner, validator *sqlvalidator.Validator, db *gorm.DB) *Tool {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	return &Tool{cfg: cfg, planner: p, validator: validator, db: db}
}

// RunOptions carries the per-call identifiers run needs for planning
// and history bookkeeping.
type RunOptions struct {
	CorrelationID string
	UserID        string
	BypassCache   bool
	Timeout       time.Duration
	Retention     time.Duration
}

// IsRawSQL reports whether query begins with a SQL statement keyword,
// per the trimmed, case-folded prefix check in spec §4.11.
func IsRawSQL(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	for _, kw := range rawPrefixes {
		if strings.HasPrefix(trimmed, kw) {
			after := trimmed[len(kw):]
			if after == "" || after[0] == ' ' || after[0] == '(' || after[0] == '\t' || after[0] == '\n' {
				return true
			}
		}
	}
	return false
}

// Run resolves query to a SQLResult, using the planner for natural
// language and C4 as the final validation authority in both cases.
func (t *Tool) Run(ctx context.Context, query string, opts RunOptions) (routerdomain.SQLResult, routerdomain.Usage, error) {
	var (
		candidateSQL   string
		usage          routerdomain.Usage
		validationNote string
	)

	if IsRawSQL(query) {
		candidateSQL = query
		validationNote = "safety_violation"
	} else {
		if t.planner == nil {
			return routerdomain.SQLResult{}, routerdomain.Usage{}, routererr.New(routererr.KindConfiguration, "no SQL planner is configured").
				WithDetail("note", "configuration")
		}

		result, err := t.planner.Plan(ctx, query, planner.Options{
			UserID:        opts.UserID,
			CorrelationID: opts.CorrelationID,
			Timeout:       opts.Timeout,
			BypassCache:   opts.BypassCache,
			Retention:     opts.Retention,
		})
		if err != nil {
			// The planner runs the SQL validator (C4) itself before a
			// plan leaves it (spec I1), so a KindValidation failure here
			// is a planner-emitted-SQL safety violation, not a planning
			// failure (timeout/schema/provider error).
			if re, ok := err.(*routererr.Error); ok {
				if re.Kind == routererr.KindValidation {
					return routerdomain.SQLResult{}, routerdomain.Usage{}, re.WithDetail("note", "planner_validation_failed")
				}
				return routerdomain.SQLResult{}, routerdomain.Usage{}, re.WithDetail("note", "planner_error")
			}
			return routerdomain.SQLResult{}, routerdomain.Usage{}, routererr.New(routererr.KindPlanning, err.Error()).WithDetail("note", "planner_error")
		}

		if result.Plan.Confidence < t.cfg.ConfidenceThreshold {
			return routerdomain.SQLResult{}, routerdomain.Usage{}, routererr.New(routererr.KindValidation, "planner confidence below threshold").
				WithDetail("note", "low_confidence").
				WithDetail("suggested_sql", result.Plan.SQL).
				WithDetail("explanation", result.Plan.Explanation).
				WithDetail("confidence", result.Plan.Confidence)
		}

		candidateSQL = result.Plan.SQL
		usage = result.Usage
		validationNote = "planner_validation_failed"
	}

	sanitized, err := t.validator.Validate(candidateSQL)
	if err != nil {
		if re, ok := err.(*routererr.Error); ok {
			return routerdomain.SQLResult{}, routerdomain.Usage{}, re.WithDetail("note", validationNote)
		}
		return routerdomain.SQLResult{}, routerdomain.Usage{}, err
	}

	sqlResult, err := t.execute(ctx, sanitized)
	if err != nil {
		return routerdomain.SQLResult{}, routerdomain.Usage{}, routererr.New(routererr.KindExecution, "query execution failed").
			WithDetail("note", "execution_error").
			WithCause(err)
	}

	return sqlResult, usage, nil
}

// execute runs sanitized against the relational store on its own
// connection, released on every exit path, materializing every row
// into JSON-safe values.
func (t *Tool) execute(ctx context.Context, sanitized string) (routerdomain.SQLResult, error) {
	sqlDB, err := t.db.DB()
	if err != nil {
		return routerdomain.SQLResult{}, err
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return routerdomain.SQLResult{}, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sanitized)
	if err != nil {
		return routerdomain.SQLResult{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return routerdomain.SQLResult{}, err
	}

	result := routerdomain.SQLResult{Columns: columns}
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return routerdomain.SQLResult{}, err
		}

		row := make([]any, len(columns))
		for i, v := range raw {
			row[i] = toJSONSafe(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return routerdomain.SQLResult{}, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// toJSONSafe converts a database/sql driver value into a type that
// marshals predictably to JSON. Some drivers return fixed-precision
// numeric columns (DECIMAL/NUMERIC) as byte strings to avoid float
// rounding at the wire layer; per spec, those are converted to
// IEEE-754 doubles here rather than surfaced as opaque byte strings.
func toJSONSafe(v any) any {
	switch val := v.(type) {
	case []byte:
		return bytesToJSONSafe(val)
	case sql.RawBytes:
		return bytesToJSONSafe([]byte(val))
	default:
		return val
	}
}

func bytesToJSONSafe(b []byte) any {
	s := string(b)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
