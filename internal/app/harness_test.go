package app

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"batchfetch/internal/config"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/planner"
	"batchfetch/internal/sqlutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	assessmentsSQL = "SELECT `id`, `name` FROM `assessments` WHERE `id` IN (?,?) ORDER BY `id`"
	answersSQL     = "SELECT `id`, `text`, `assessment_id` AS __batch_owner FROM `answers` WHERE `assessment_id` IN (?,?) ORDER BY `assessment_id`, `id`"
	tagsSQL        = "SELECT `tag`, `answer_id` AS __batch_owner FROM `answers_tags` WHERE `answer_id` IN (?,?) ORDER BY `answer_id`, `tag`"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "mysql"},
		Batch:    config.BatchConfig{ChunkSize: 500, MaxDepth: 2},
		Demo: config.DemoConfig{
			Parents:           2,
			ChildrenPerParent: 2,
			TagsPerChild:      1,
			Rounds:            2,
			BatchSize:         2,
			Seed:              7,
			BatchPath:         "answers.tags",
			Setup:             false,
		},
	}
}

func newMockHarness(t *testing.T, cfg *config.Config) (*Harness, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h, err := NewHarness(dbexec.NewStandardExecutor(db), sqlutil.DialectMySQL, cfg, nil)
	require.NoError(t, err)
	return h, mock
}

// expectRound queues the four statements one round issues: the assessment load, one
// answers batch and the tags batch split in two by the batch size.
func expectRound(mock sqlmock.Sqlmock, tags map[int64]string) {
	mock.ExpectQuery(regexp.QuoteMeta(assessmentsSQL)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "assessment 1").
			AddRow(int64(2), "assessment 2"))

	mock.ExpectQuery(regexp.QuoteMeta(answersSQL)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", planner.BatchOwnerAlias}).
			AddRow(int64(1), "Answer 1.1", int64(1)).
			AddRow(int64(2), "Answer 1.2", int64(1)).
			AddRow(int64(3), "Answer 2.1", int64(2)).
			AddRow(int64(4), "Answer 2.2", int64(2)))

	for _, pair := range [][2]int64{{1, 2}, {3, 4}} {
		rows := sqlmock.NewRows([]string{"tag", planner.BatchOwnerAlias})
		for _, id := range pair {
			if tag, ok := tags[id]; ok {
				rows.AddRow(tag, id)
			}
		}
		mock.ExpectQuery(regexp.QuoteMeta(tagsSQL)).
			WithArgs(pair[0], pair[1]).
			WillReturnRows(rows)
	}
}

func TestHarnessRun_BatchesEveryRound(t *testing.T) {
	h, mock := newMockHarness(t, testConfig())
	tags := map[int64]string{1: "tag-00", 2: "tag-00", 3: "tag-00", 4: "tag-00"}
	expectRound(mock, tags)
	expectRound(mock, tags)

	report, err := h.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, uint64(7), report.Seed)
	want := []RoundReport{
		{Round: 1, Parents: 2, Children: 4, Tags: 4, Queries: 4, Executions: 2, SubQueries: 3},
		{Round: 2, Parents: 2, Children: 4, Tags: 4, Queries: 4, Executions: 2, SubQueries: 3},
	}
	ignore := cmpopts.IgnoreFields(RoundReport{}, "Duration", "CacheHits")
	if diff := cmp.Diff(want, report.Rounds, ignore); diff != "" {
		t.Fatalf("round reports mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(8), report.Queries())
}

func TestHarnessRun_MissingTagsResolveEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.Demo.Rounds = 1
	h, mock := newMockHarness(t, cfg)
	expectRound(mock, map[int64]string{2: "tag-00"})

	report, err := h.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, report.Rounds, 1)
	assert.Equal(t, 4, report.Rounds[0].Children)
	assert.Equal(t, 1, report.Rounds[0].Tags)
}

func TestHarnessRun_DetectsDivergentRound(t *testing.T) {
	h, mock := newMockHarness(t, testConfig())
	expectRound(mock, map[int64]string{1: "tag-00", 3: "tag-00"})
	expectRound(mock, map[int64]string{1: "tag-01", 3: "tag-00"})

	report, err := h.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoundMismatch)
	assert.Len(t, report.Rounds, 1)
}

func TestHarnessRun_QueryFailureStopsRun(t *testing.T) {
	cfg := testConfig()
	cfg.Demo.Rounds = 1
	h, mock := newMockHarness(t, cfg)
	mock.ExpectQuery(regexp.QuoteMeta(assessmentsSQL)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "assessment 1").
			AddRow(int64(2), "assessment 2"))
	mock.ExpectQuery(regexp.QuoteMeta(answersSQL)).
		WithArgs(int64(1), int64(2)).
		WillReturnError(errors.New("connection reset"))

	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round 1")
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHarnessRun_HonoursCancelledContext(t *testing.T) {
	h, _ := newMockHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Rounds)
}

func TestHarnessSetup_SeedsDemoTables(t *testing.T) {
	cfg := testConfig()
	h, mock := newMockHarness(t, cfg)

	for _, table := range []string{"assessments", "answers", "answers_tags"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table + " (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, table := range []string{"answers_tags", "answers", "assessments"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + table + "`")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `assessments`")).
		WithArgs(int64(1), "assessment 1", int64(2), "assessment 2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `answers`")).
		WithArgs(
			int64(1), int64(1), "Answer 1.1",
			int64(2), int64(1), "Answer 1.2",
			int64(3), int64(2), "Answer 2.1",
			int64(4), int64(2), "Answer 2.2",
		).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `answers_tags`")).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, h.Setup(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHarnessSetup_ChunksInserts(t *testing.T) {
	cfg := testConfig()
	cfg.Demo.TagsPerChild = 0
	cfg.Batch.ChunkSize = 3
	h, mock := newMockHarness(t, cfg)
	mock.MatchExpectationsInOrder(false)

	for _, table := range []string{"assessments", "answers", "answers_tags"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table + " (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + table + "`")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `assessments`")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	// Four answers at three rows per statement.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `answers`")).
		WithArgs(anyArgs(9)...).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `answers`")).
		WithArgs(anyArgs(3)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, h.Setup(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHarnessSetup_SchemaFailure(t *testing.T) {
	h, mock := newMockHarness(t, testConfig())
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err := h.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create demo schema")
}

func TestSchemaStatements(t *testing.T) {
	mysqlStmts, err := schemaStatements(sqlutil.DialectMySQL)
	require.NoError(t, err)
	assert.Len(t, mysqlStmts, 3)

	pgStmts, err := schemaStatements(sqlutil.DialectPostgres)
	require.NoError(t, err)
	assert.Len(t, pgStmts, 4)
	for _, stmt := range pgStmts {
		assert.NotContains(t, stmt, ";")
	}
}

func TestDemoRegistry(t *testing.T) {
	registry, err := DemoRegistry()
	require.NoError(t, err)

	path, err := registry.ResolvePath(assessmentKind, "answers.tags")
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, "answers", path[0].Table)
	assert.Equal(t, "assessment_id", path[0].ForeignKey)
	assert.Equal(t, "answers_tags", path[1].Table)
	assert.Equal(t, "answer_id", path[1].ForeignKey)
	assert.True(t, path[1].IsElementCollection())
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}
