package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acme-corp/enterprise-tool-router/internal/database"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(gormDB, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	s := New(pool, zap.NewNop())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestHashCanonical_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}
	assert.Equal(t, HashCanonical(a), HashCanonical(b))
}

func TestHashCanonical_DifferentValuesDiffer(t *testing.T) {
	assert.NotEqual(t, HashCanonical(map[string]any{"a": 1}), HashCanonical(map[string]any{"a": 2}))
}

func TestEntry_CloseSuccess_WritesOneRecord(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	e := Open("corr-1", "user-1", "sql", "run", map[string]any{"query": "how many sales"})
	time.Sleep(time.Millisecond)
	e.CloseSuccess(ctx, s, map[string]any{"row_count": 3}, 10, 5, 0.001)

	var count int64
	require.NoError(t, s.pool.DB().Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var rec Record
	require.NoError(t, s.pool.DB().First(&rec).Error)
	assert.True(t, rec.Success)
	assert.Equal(t, "corr-1", rec.CorrelationID)
	assert.GreaterOrEqual(t, rec.DurationMS, int64(0))
	assert.NotEmpty(t, rec.InputHash)
	assert.NotEmpty(t, rec.OutputHash)
}

func TestEntry_CloseFailure_WritesGenericOutput(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	e := Open("corr-2", "", "sql", "run", map[string]any{"query": "bad"})
	e.CloseFailure(ctx, s)

	var rec Record
	require.NoError(t, s.pool.DB().Where("correlation_id = ?", "corr-2").First(&rec).Error)
	assert.False(t, rec.Success)
	assert.Equal(t, HashCanonical(map[string]string{"error": "Operation failed"}), rec.OutputHash)
}

func TestRecord_AppendOnly_NoUpdateMethodExposed(t *testing.T) {
	// The Sink exposes no Update/Delete methods; this test documents
	// that invariant by checking only Create is ever issued.
	s := newTestSink(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		Open("corr-3", "", "sql", "run", nil).CloseSuccess(ctx, s, nil, 0, 0, 0)
	}

	var count int64
	require.NoError(t, s.pool.DB().Model(&Record{}).Where("correlation_id = ?", "corr-3").Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
