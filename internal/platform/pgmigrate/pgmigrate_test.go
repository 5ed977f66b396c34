package pgmigrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crvs/migrations"
)

func TestExtractUp(t *testing.T) {
	t.Run("returns up section only", func(t *testing.T) {
		content := "-- +migrate Up\nCREATE TABLE a (id int);\n-- +migrate Down\nDROP TABLE a;\n"
		up := ExtractUp(content)
		assert.Contains(t, up, "CREATE TABLE a")
		assert.NotContains(t, up, "DROP TABLE")
	})

	t.Run("no markers returns content", func(t *testing.T) {
		assert.Equal(t, "SELECT 1;", ExtractUp("SELECT 1;"))
	})
}

func TestEmbeddedMigrationsHaveUpSections(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		content, err := fs.ReadFile(migrations.FS, entry.Name())
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(content), "-- +migrate Up"), entry.Name())
	}
}
