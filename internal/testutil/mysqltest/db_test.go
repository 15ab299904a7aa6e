package mysqltest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "TestHarness_rounds_1", sanitizeName("TestHarness/rounds-1"))
	assert.Len(t, sanitizeName(strings.Repeat("a", 80)), 40)
}

func TestIsValidDatabaseName(t *testing.T) {
	assert.True(t, isValidDatabaseName("test_TestHarness_1700000000000"))
	assert.False(t, isValidDatabaseName(""))
	assert.False(t, isValidDatabaseName("test`; DROP DATABASE x"))
	assert.False(t, isValidDatabaseName(strings.Repeat("a", 65)))
}
