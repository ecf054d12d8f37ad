package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/restodash/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add summaries table", "add_summaries_table"},
		{"Add-Summaries-Table", "add_summaries_table"},
		{"ADD__SUMMARY__INDEX", "add_summary_index"},
		{"Backfill 2024", "backfill_2024"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("numbers after existing migrations", func(t *testing.T) {
		dir := t.TempDir()
		for _, f := range []string{"000001_init.up.sql", "000001_init.down.sql", "000007_gap.up.sql"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- test"), 0o644))
		}

		mf, err := CreateMigration(dir, "add rollup index", "Index rollup rows")
		require.NoError(t, err)

		assert.Equal(t, 8, mf.Version)
		assert.Equal(t, filepath.Join(dir, "000008_add_rollup_index.up.sql"), mf.UpPath)
		assert.Equal(t, filepath.Join(dir, "000008_add_rollup_index.down.sql"), mf.DownPath)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "add_rollup_index")
		assert.Contains(t, string(up), "Index rollup rows")

		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "Rollback")
	})

	t.Run("creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		mf, err := CreateMigration(dir, "first", "")
		require.NoError(t, err)
		assert.Equal(t, 1, mf.Version)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("lists up migrations sorted", func(t *testing.T) {
		fsys := fstest.MapFS{
			"000002_b.up.sql":   {Data: []byte("--")},
			"000002_b.down.sql": {Data: []byte("--")},
			"000001_a.up.sql":   {Data: []byte("--")},
			"000001_a.down.sql": {Data: []byte("--")},
			"README.md":         {Data: []byte("docs")},
			"sub.up.sql/x":      {Data: []byte("--")},
		}

		names, err := ListMigrations(fsys)
		require.NoError(t, err)
		assert.Equal(t, []string{"000001_a", "000002_b"}, names)
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		names, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("embedded schema", func(t *testing.T) {
		names, err := ListMigrations(migrations.FS)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"000001_create_pnl_line_items",
			"000002_create_pnl_period_summaries",
		}, names)
	})
}

func TestLatestVersion(t *testing.T) {
	latest, err := LatestVersion(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	latest, err = LatestVersion(fstest.MapFS{})
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestEmbeddedSource(t *testing.T) {
	src, err := embeddedSource(migrations.FS)
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}
