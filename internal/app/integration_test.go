//go:build integration

package app

import (
	"context"
	"testing"

	"batchfetch/internal/dbexec"
	"batchfetch/internal/sqlutil"
	"batchfetch/internal/testutil/mysqltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarnessIntegration_MySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	tdb := mysqltest.New(t)

	cfg := testConfig()
	cfg.Demo.Parents = 10
	cfg.Demo.ChildrenPerParent = 10
	cfg.Demo.TagsPerChild = 2
	cfg.Demo.Rounds = 5
	cfg.Demo.BatchSize = 3

	h, err := NewHarness(dbexec.NewStandardExecutor(tdb.DB), sqlutil.DialectMySQL, cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.Setup(ctx))
	// Setup is repeatable.
	require.NoError(t, h.Setup(ctx))

	report, err := h.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Rounds, 5)

	for _, round := range report.Rounds {
		assert.Equal(t, 10, round.Parents)
		assert.Equal(t, 100, round.Children)
		assert.Equal(t, 200, round.Tags)
		// One root load, answers in 4 chunks, tags for 100 answers in 34 chunks.
		assert.Equal(t, int64(1+4+34), round.Queries)
		assert.Equal(t, int64(2), round.Executions)
	}
}
