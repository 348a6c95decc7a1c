// Package planhistory is the durable warm lookup tier over validated
// plans (C7), keyed by the same query hash the hot cache (C6) uses.
// Unlike the cache, a re-insert of an existing key never overwrites
// the stored SQL — only usage bookkeeping (use_count, last_used_at,
// expires_at) advances.
package planhistory

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/acme-corp/enterprise-tool-router/internal/database"
	"github.com/acme-corp/enterprise-tool-router/internal/plancache"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

// Entry is the gorm model for one history row.
type Entry struct {
	QueryHash     string    `gorm:"primaryKey;column:query_hash;size:64"`
	Query         string    `gorm:"column:query;type:text"`
	SQL           string    `gorm:"column:sql;type:text"`
	Confidence    float64   `gorm:"column:confidence"`
	UserID        string    `gorm:"column:user_id;size:128"`
	CorrelationID string    `gorm:"column:correlation_id;size:128"`
	TokensInput   int       `gorm:"column:tokens_input"`
	TokensOutput  int       `gorm:"column:tokens_output"`
	CostUSD       float64   `gorm:"column:cost_usd"`
	UseCount      int64     `gorm:"column:use_count"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	LastUsedAt    time.Time `gorm:"column:last_used_at"`
	ExpiresAt     time.Time `gorm:"column:expires_at"`
}

// TableName pins the gorm table name.
func (Entry) TableName() string { return "query_history" }

// Store performs a durable upsert of a validated plan entry.
type Store struct {
	pool *database.PoolManager
}

// New builds a Store over pool.
func New(pool *database.PoolManager) *Store {
	return &Store{pool: pool}
}

// Migrate creates/updates the query_history table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&Entry{})
}

// Store upserts an entry for plan keyed by query's hash. On conflict
// by key, SQL is never overwritten; only use_count, last_used_at, and
// expires_at advance. usage is the token/cost accounting for the
// provider call that produced plan; it is recorded only on first
// insert, matching the SQL/confidence immutability of the row.
func (s *Store) Store(ctx context.Context, query string, plan routerdomain.Plan, userID, correlationID string, usage routerdomain.Usage, retention time.Duration) error {
	now := time.Now().UTC()
	hash := plancache.Key(query)

	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var existing Entry
		err := tx.Where("query_hash = ?", hash).First(&existing).Error

		if err == gorm.ErrRecordNotFound {
			return tx.Create(&Entry{
				QueryHash:     hash,
				Query:         query,
				SQL:           plan.SQL,
				Confidence:    plan.Confidence,
				UserID:        userID,
				CorrelationID: correlationID,
				TokensInput:   usage.InputTokens,
				TokensOutput:  usage.OutputTokens,
				CostUSD:       usage.EstimatedCostUSD,
				UseCount:      1,
				CreatedAt:     now,
				LastUsedAt:    now,
				ExpiresAt:     now.Add(retention),
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&Entry{}).Where("query_hash = ?", hash).Updates(map[string]any{
			"use_count":    existing.UseCount + 1,
			"last_used_at": now,
			"expires_at":   now.Add(retention),
		}).Error
	})
}

// Lookup returns the live (unexpired) history entry for query, if any.
func (s *Store) Lookup(ctx context.Context, query string) (Entry, bool, error) {
	hash := plancache.Key(query)
	var e Entry
	err := s.pool.DB().WithContext(ctx).
		Where("query_hash = ? AND expires_at > ?", hash, time.Now().UTC()).
		First(&e).Error

	if err == gorm.ErrRecordNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Cleanup deletes every expired row and returns the count removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	result := s.pool.DB().WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&Entry{})
	return result.RowsAffected, result.Error
}

// ToPlan reconstructs a Plan from a history entry for the C10 warm-hit path.
func (e Entry) ToPlan() routerdomain.Plan {
	return routerdomain.Plan{SQL: e.SQL, Confidence: e.Confidence, Explanation: "restored from plan history"}
}
