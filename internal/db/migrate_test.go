package db

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, schema := range []Schema{CatalogSchema, SalesSchema} {
		t.Run(string(schema), func(t *testing.T) {
			dir := "migrations/" + string(schema)
			ups, err := fs.Glob(migrationsFS, dir+"/*.up.sql")
			require.NoError(t, err)
			downs, err := fs.Glob(migrationsFS, dir+"/*.down.sql")
			require.NoError(t, err)

			assert.NotEmpty(t, ups)
			assert.Len(t, downs, len(ups))

			src, err := iofs.New(migrationsFS, dir)
			require.NoError(t, err)
			first, err := src.First()
			require.NoError(t, err)
			assert.Equal(t, uint(1), first)
			require.NoError(t, src.Close())
		})
	}
}
