// Package audit is the append-only record of every processed request
// (C9). A record is opened on entry and closed on exit, successful or
// not; write failures are logged and never propagated to the request
// path.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/database"
)

// Record is the gorm model for one append-only audit row.
type Record struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement;column:id"`
	Timestamp     time.Time `gorm:"column:timestamp"`
	CorrelationID string    `gorm:"column:correlation_id;size:128;index"`
	UserID        string    `gorm:"column:user_id;size:128"`
	Tool          string    `gorm:"column:tool;size:32"`
	Action        string    `gorm:"column:action;size:64"`
	InputHash     string    `gorm:"column:input_hash;size:64"`
	OutputHash    string    `gorm:"column:output_hash;size:64"`
	Success       bool      `gorm:"column:success"`
	DurationMS    int64     `gorm:"column:duration_ms"`
	TokensInput   int       `gorm:"column:tokens_input"`
	TokensOutput  int       `gorm:"column:tokens_output"`
	CostUSD       float64   `gorm:"column:cost_usd"`
}

// TableName pins the gorm table name.
func (Record) TableName() string { return "audit_log" }

// Sink writes audit records. All methods are safe for concurrent use.
type Sink struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// New builds a Sink over pool.
func New(pool *database.PoolManager, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: pool, logger: logger.With(zap.String("component", "audit"))}
}

// Migrate creates/updates the audit_log table.
func (s *Sink) Migrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&Record{})
}

// Entry is opened on enter and closed exactly once, attaching either a
// success or failure outcome before Write.
type Entry struct {
	CorrelationID string
	UserID        string
	Tool          string
	Action        string
	Input         any

	started time.Time
}

// Open starts an audit entry's monotonic duration clock.
func Open(correlationID, userID, tool, action string, input any) *Entry {
	return &Entry{
		CorrelationID: correlationID,
		UserID:        userID,
		Tool:          tool,
		Action:        action,
		Input:         input,
		started:       time.Now(),
	}
}

// CloseSuccess writes the entry with output/usage attached and
// success=true. Write failures are logged, never returned.
func (e *Entry) CloseSuccess(ctx context.Context, sink *Sink, output any, tokensInput, tokensOutput int, costUSD float64) {
	sink.write(ctx, e, output, true, tokensInput, tokensOutput, costUSD)
}

// CloseFailure writes the entry with success=false and a generic
// output payload; the real error is never persisted as audit output.
func (e *Entry) CloseFailure(ctx context.Context, sink *Sink) {
	sink.write(ctx, e, map[string]string{"error": "Operation failed"}, false, 0, 0, 0)
}

func (s *Sink) write(ctx context.Context, e *Entry, output any, success bool, tokensInput, tokensOutput int, costUSD float64) {
	rec := Record{
		Timestamp:     time.Now().UTC(),
		CorrelationID: e.CorrelationID,
		UserID:        e.UserID,
		Tool:          e.Tool,
		Action:        e.Action,
		InputHash:     HashCanonical(e.Input),
		OutputHash:    HashCanonical(output),
		Success:       success,
		DurationMS:    time.Since(e.started).Milliseconds(),
		TokensInput:   tokensInput,
		TokensOutput:  tokensOutput,
		CostUSD:       costUSD,
	}

	if err := s.pool.DB().WithContext(ctx).Create(&rec).Error; err != nil {
		s.logger.Error("audit write failed", zap.Error(err), zap.String("correlation_id", e.CorrelationID))
	}
}

// HashCanonical returns the SHA-256 hex digest of v's canonical JSON
// encoding (object keys sorted, stable scalar encoding).
func HashCanonical(v any) string {
	canonical, err := canonicalJSON(v)
	if err != nil {
		canonical = []byte("null")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON marshals v through a generic round-trip so map keys
// are sorted and numeric/date formatting is stable regardless of the
// concrete type supplied.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
