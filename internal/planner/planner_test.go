package planner

import (
	"testing"

	"batchfetch/internal/model"
	"batchfetch/internal/sqlutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoRegistry(t *testing.T) *model.Registry {
	t.Helper()
	r, err := model.NewRegistry(
		model.EntityType{
			Name:        "Assessment",
			Columns:     []string{"name"},
			Collections: []model.Collection{{Name: "answers", Target: "Answer"}},
		},
		model.EntityType{
			Name:        "Answer",
			Columns:     []string{"text"},
			Collections: []model.Collection{{Name: "tags", ValueColumns: []string{"tag"}, OrderBy: []string{"tag"}}},
		},
	)
	require.NoError(t, err)
	return r
}

func TestPlanEntityLoad(t *testing.T) {
	r := demoRegistry(t)
	assessment, _ := r.Type("Assessment")

	t.Run("mysql", func(t *testing.T) {
		planned, err := PlanEntityLoad(sqlutil.DialectMySQL, assessment, []interface{}{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, "SELECT `id`, `name` FROM `assessments` WHERE `id` IN (?,?,?) ORDER BY `id`", planned.SQL)
		assert.Equal(t, []interface{}{1, 2, 3}, planned.Args)
	})

	t.Run("postgres", func(t *testing.T) {
		planned, err := PlanEntityLoad(sqlutil.DialectPostgres, assessment, []interface{}{1, 2})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "id", "name" FROM "assessments" WHERE "id" IN ($1,$2) ORDER BY "id"`, planned.SQL)
	})

	t.Run("no keys", func(t *testing.T) {
		planned, err := PlanEntityLoad(sqlutil.DialectMySQL, assessment, nil)
		require.NoError(t, err)
		assert.True(t, planned.IsEmpty())
	})
}

func TestPlanCollectionBatch(t *testing.T) {
	r := demoRegistry(t)

	t.Run("entity collection orders by owner then child key", func(t *testing.T) {
		answers, err := r.Collection("Assessment", "answers")
		require.NoError(t, err)

		planned, err := PlanCollectionBatch(sqlutil.DialectMySQL, answers, []interface{}{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `id`, `text`, `assessment_id` AS __batch_owner FROM `answers` WHERE `assessment_id` IN (?,?,?) ORDER BY `assessment_id`, `id`",
			planned.SQL,
		)
		assert.Equal(t, []interface{}{1, 2, 3}, planned.Args)
	})

	t.Run("element collection uses explicit ordering", func(t *testing.T) {
		tags, err := r.Collection("Answer", "tags")
		require.NoError(t, err)

		planned, err := PlanCollectionBatch(sqlutil.DialectPostgres, tags, []interface{}{10, 11})
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT "tag", "answer_id" AS __batch_owner FROM "answers_tags" WHERE "answer_id" IN ($1,$2) ORDER BY "answer_id", "tag"`,
			planned.SQL,
		)
	})

	t.Run("no owners", func(t *testing.T) {
		tags, _ := r.Collection("Answer", "tags")
		planned, err := PlanCollectionBatch(sqlutil.DialectMySQL, tags, []interface{}{})
		require.NoError(t, err)
		assert.True(t, planned.IsEmpty())
	})

	t.Run("missing foreign key", func(t *testing.T) {
		_, err := PlanCollectionBatch(sqlutil.DialectMySQL, &model.Collection{Owner: "A", Name: "bs", ValueColumns: []string{"x"}}, []interface{}{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "A.bs")
	})
}

func TestPlanFixtures(t *testing.T) {
	t.Run("insert rows", func(t *testing.T) {
		planned, err := PlanInsertRows(sqlutil.DialectMySQL, "assessments", []string{"id", "name"}, [][]interface{}{
			{1, "assessment 1"},
			{2, "assessment 2"},
		})
		require.NoError(t, err)
		assert.Contains(t, planned.SQL, "INSERT INTO `assessments`")
		assert.Equal(t, []interface{}{1, "assessment 1", 2, "assessment 2"}, planned.Args)
	})

	t.Run("insert width mismatch", func(t *testing.T) {
		_, err := PlanInsertRows(sqlutil.DialectMySQL, "assessments", []string{"id", "name"}, [][]interface{}{{1}})
		require.Error(t, err)
	})

	t.Run("delete all", func(t *testing.T) {
		planned, err := PlanDeleteAll(sqlutil.DialectPostgres, "answers")
		require.NoError(t, err)
		assert.Equal(t, `DELETE FROM "answers"`, planned.SQL)
		assert.Empty(t, planned.Args)
	})
}
