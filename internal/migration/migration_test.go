package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/apipatb/earning-sub011/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestRunCreatesTablesOnSQLite(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Run(conn))
	require.NoError(t, Run(conn))

	for _, table := range []string{"customers", "tickets", "invoices", "segments", "segment_members", "segment_analyses"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
