package grid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogueJSON = `[
	{"product": "HD08MM1305", "electrodes": 64},
	{"product": "HD10MM0808", "electrodes": 64},
	{"product": "HD08MM1305", "electrodes": 65},
	{"product": "", "electrodes": 4}
]`

const catalogueYAML = `
- product: HD04MM1305
  electrodes: 64
- product: HD05MM0204
  electrodes: 7
`

func TestParseCatalogue(t *testing.T) {
	c, err := ParseCatalogue([]byte(catalogueJSON), "json")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	n, ok := c.Lookup("hd08mm1305")
	assert.True(t, ok)
	assert.Equal(t, 64, n, "first entry wins")

	y, err := ParseCatalogue([]byte(catalogueYAML), "yaml")
	require.NoError(t, err)
	n, ok = y.Lookup("HD05MM0204")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, err = ParseCatalogue([]byte("x"), "toml")
	assert.Error(t, err)
	_, err = ParseCatalogue([]byte("{"), "json")
	assert.Error(t, err)
}

func TestCatalogue_NilIsUnknown(t *testing.T) {
	var c *Catalogue
	_, ok := c.Lookup("HD10MM0808")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLoadCatalogue(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "grids.json")
	yamlPath := filepath.Join(dir, "grids.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(catalogueJSON), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(catalogueYAML), 0o644))

	c, err := LoadCatalogue(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	c, err = LoadCatalogue(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = LoadCatalogue(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestFetchCatalogue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/grids.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogueJSON))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := FetchCatalogue(ctx, srv.Client(), srv.URL+"/grids.json")
	require.NoError(t, err)
	n, ok := c.Lookup("HD10MM0808")
	assert.True(t, ok)
	assert.Equal(t, 64, n)

	_, err = FetchCatalogue(ctx, srv.Client(), srv.URL+"/nope")
	assert.Error(t, err)
}

func TestResolveCatalogue_FailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "grids.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogueYAML), 0o644))

	c := ResolveCatalogue(context.Background(), path, srv.URL)
	assert.Equal(t, 2, c.Len(), "file entries survive a failed download")

	empty := ResolveCatalogue(context.Background(), filepath.Join(dir, "none.json"), "")
	require.NotNil(t, empty)
	assert.Equal(t, 0, empty.Len())

	topo := Extract([]string{"HD10MM0808"}, empty.Lookup)
	e, _ := topo.Get("8x8")
	assert.Equal(t, 64, e.ElectrodeCount)
	assert.True(t, e.ElectrodeCountInferred)
}
