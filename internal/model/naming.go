package model

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// DefaultTableName derives a table name from a kind name: "AnswerTag" -> "answer_tags".
func DefaultTableName(kind string) string {
	return inflection.Plural(snakeCase(kind))
}

// DefaultForeignKey derives the owner reference column: ("assessments", "id") -> "assessment_id".
func DefaultForeignKey(ownerTable, ownerKeyColumn string) string {
	return inflection.Singular(ownerTable) + "_" + ownerKeyColumn
}

// DefaultElementTable derives the table of an element collection: ("answers", "tags") -> "answers_tags".
func DefaultElementTable(ownerTable, property string) string {
	return ownerTable + "_" + snakeCase(property)
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
