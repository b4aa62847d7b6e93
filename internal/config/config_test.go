package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "data-asistente.csv", cfg.Data.RawCSV)
	assert.Equal(t, "categorias.yml", cfg.Taxonomy.Categories)
	assert.Equal(t, "productos.yml", cfg.Taxonomy.Products)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
data:
  dir: /srv/chatlens
server:
  port: 9000
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/srv/chatlens", cfg.GetDataDir())
	// Defaults should still be set for unspecified fields
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, filepath.Join("/srv/chatlens", "categorias.yml"), cfg.CategoriesPath())
	assert.Equal(t, filepath.Join("/srv/chatlens", "chat_data.db"), cfg.DBPath())
}

func TestAbsolutePathsAreKept(t *testing.T) {
	cfg, err := parse([]byte(`
data:
  dir: /srv/chatlens
  raw_csv: /exports/latest.csv
taxonomy:
  products: /etc/chatlens/productos.yml
`))
	require.NoError(t, err)

	assert.Equal(t, "/exports/latest.csv", cfg.RawCSVPath())
	assert.Equal(t, "/etc/chatlens/productos.yml", cfg.ProductsPath())
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.GetDataDir())

	cfg.Data.Dir = "/custom/path"
	assert.Equal(t, "/custom/path", cfg.GetDataDir())
}
