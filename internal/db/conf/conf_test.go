package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	schema := "CREATE TABLE a (x INT);\n\n  ;CREATE INDEX i ON a (x);\n"
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, SplitStatements(schema))
	assert.Empty(t, SplitStatements("  \n"))
}

func TestFindSchema(t *testing.T) {
	path, err := FindSchema()
	assert.NoError(t, err)
	assert.Contains(t, path, "schema.sql")
}
