package planhistory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
)

// TestProperty_UpsertUseCountAndSQL is L3: upserting the same query
// into history N times increments use_count by N-1 after the first
// insert, and never mutates the stored SQL.
func TestProperty_UpsertUseCountAndSQL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		query := rapid.StringMatching(`[a-zA-Z_][a-zA-Z0-9_ ]{5,40}`).Draw(t, "query")
		firstSQL := "SELECT * FROM sales_fact WHERE id = " + rapid.StringMatching(`[0-9]{1,6}`).Draw(t, "id")
		n := rapid.IntRange(1, 8).Draw(t, "n")

		for i := 0; i < n; i++ {
			// Every call after the first carries a different SQL string;
			// the store must keep the first one regardless.
			sql := firstSQL
			if i > 0 {
				sql = "SELECT * FROM some_other_table"
			}
			plan := routerdomain.Plan{SQL: sql, Confidence: 0.9}
			err := s.Store(ctx, query, plan, "user-1", "corr-1", routerdomain.Usage{}, time.Hour)
			require.NoError(t, err)
		}

		entry, ok, err := s.Lookup(ctx, query)
		require.NoError(t, err)
		require.True(t, ok)

		if entry.UseCount != int64(n) {
			t.Fatalf("use_count = %d, want %d after %d upserts", entry.UseCount, n, n)
		}
		if entry.SQL != firstSQL {
			t.Fatalf("SQL = %q, want unchanged first-insert SQL %q", entry.SQL, firstSQL)
		}
	})
}
