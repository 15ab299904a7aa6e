package app

import (
	"embed"
	"fmt"
	"strings"

	"batchfetch/internal/model"
	"batchfetch/internal/sqlutil"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	assessmentKind = "Assessment"
	answerKind     = "Answer"

	assessmentsTable = "assessments"
	answersTable     = "answers"
	tagsTable        = "answers_tags"
)

// DemoRegistry maps the assessment/answer/tag demo schema.
func DemoRegistry() (*model.Registry, error) {
	return model.NewRegistry(
		model.EntityType{
			Name:    assessmentKind,
			Table:   assessmentsTable,
			Columns: []string{"name"},
			Collections: []model.Collection{
				{Name: "answers", Target: answerKind, ForeignKey: "assessment_id"},
			},
		},
		model.EntityType{
			Name:    answerKind,
			Table:   answersTable,
			Columns: []string{"text"},
			Collections: []model.Collection{
				{Name: "tags", Table: tagsTable, ForeignKey: "answer_id", ValueColumns: []string{"tag"}, OrderBy: []string{"tag"}},
			},
		},
	)
}

// schemaStatements returns the DDL statements for the dialect, one per element.
func schemaStatements(d sqlutil.Dialect) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + string(d) + ".sql")
	if err != nil {
		return nil, fmt.Errorf("no demo schema for dialect %s: %w", d, err)
	}
	var stmts []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
