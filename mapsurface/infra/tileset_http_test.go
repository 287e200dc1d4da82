package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshboard-maps/mapsurface/domain"
)

const styleTwoSources = `{
  "version": 8,
  "name": "board",
  "sources": {
    "taiwan": {
      "type": "raster",
      "tiles": ["/tiles/taiwan/{z}/{x}/{y}.png"],
      "tileSize": 256,
      "minzoom": 5,
      "maxzoom": 16
    },
    "aaa-world": {
      "type": "raster",
      "tiles": ["/tiles/world/{z}/{x}/{y}.png"],
      "maxzoom": 8
    }
  },
  "layers": [{"id": "taiwan", "type": "raster", "source": "taiwan"}]
}`

func tilesServer(t *testing.T, tilesets string, styles map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/available-tilesets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tilesets))
	})
	for path, body := range styles {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPConfigSource_UsesFirstSourceInDocumentOrder(t *testing.T) {
	srv := tilesServer(t,
		`{"success": true, "map_enabled": true, "layer_mode": "combined", "tilesets": [{"name": "taiwan"}, {"name": "world"}]}`,
		map[string]string{"/tiles/style.json": styleTwoSources},
	)

	cfg, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, srv.URL+"/tiles/style.json", cfg.StyleURL)
	assert.Equal(t, 5.0, cfg.MinZoom)
	assert.Equal(t, 16.0, cfg.MaxZoom)
	assert.Equal(t, 256, cfg.TileSize)
	assert.Equal(t, srv.URL+"/tiles/taiwan/{z}/{x}/{y}.png", cfg.TileURL)
	assert.Len(t, cfg.Tilesets, 2)
}

func TestHTTPConfigSource_SingleLayerModeUsesTilesetStyle(t *testing.T) {
	srv := tilesServer(t,
		`{"success": true, "layer_mode": "single", "tilesets": [{"name": "taiwan"}]}`,
		map[string]string{"/tiles/taiwan/style.json": `{"sources": {"t": {"type": "raster", "tiles": ["{z}/{x}/{y}.webp"]}}}`},
	)

	cfg, err := NewHTTPConfigSource(srv.URL+"/", 0).FetchTilesetConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/tiles/taiwan/style.json", cfg.StyleURL)
	assert.Equal(t, srv.URL+"/tiles/taiwan/{z}/{x}/{y}.webp", cfg.TileURL)
	// sem minzoom/maxzoom na fonte: padrões
	assert.Equal(t, 0.0, cfg.MinZoom)
	assert.Equal(t, 22.0, cfg.MaxZoom)
	assert.Equal(t, 512, cfg.TileSize)
}

func TestHTTPConfigSource_ZeroOrNullMaxZoomFallsBack(t *testing.T) {
	for name, source := range map[string]string{
		"zero": `{"tiles": ["/t/{z}/{x}/{y}.png"], "minzoom": 3, "maxzoom": 0}`,
		"null": `{"tiles": ["/t/{z}/{x}/{y}.png"], "minzoom": null, "maxzoom": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := tilesServer(t,
				`{"success": true, "map_enabled": true}`,
				map[string]string{"/tiles/style.json": `{"sources": {"s": ` + source + `}}`},
			)

			cfg, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 22.0, cfg.MaxZoom)
			assert.Equal(t, srv.URL+"/t/{z}/{x}/{y}.png", cfg.TileURL)
		})
	}
}

func TestHTTPConfigSource_MapDisabled(t *testing.T) {
	srv := tilesServer(t, `{"success": true, "map_enabled": false, "message": "no tiles installed"}`, nil)

	cfg, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "no tiles installed", cfg.Message)
	assert.Empty(t, cfg.StyleURL)
}

func TestHTTPConfigSource_Errors(t *testing.T) {
	t.Run("style missing", func(t *testing.T) {
		srv := tilesServer(t, `{"success": true}`, nil)
		_, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
		assert.ErrorContains(t, err, "unexpected status 404")
	})

	t.Run("malformed tilesets", func(t *testing.T) {
		srv := tilesServer(t, `{"success": tru`, nil)
		_, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
		assert.ErrorContains(t, err, "decode available-tilesets")
	})

	t.Run("malformed style", func(t *testing.T) {
		srv := tilesServer(t, `{"success": true}`, map[string]string{"/tiles/style.json": `{"sources": [`})
		_, err := NewHTTPConfigSource(srv.URL, 0).FetchTilesetConfig(context.Background())
		assert.ErrorContains(t, err, "decode style")
	})
}

func TestStylePath(t *testing.T) {
	one := []domain.Tileset{{Name: "taiwan"}}
	two := []domain.Tileset{{Name: "taiwan"}, {Name: "world"}}

	assert.Equal(t, "/tiles/taiwan/style.json", StylePath("single", one))
	assert.Equal(t, "/tiles/style.json", StylePath("single", two))
	assert.Equal(t, "/tiles/style.json", StylePath("combined", one))
	assert.Equal(t, "/tiles/style.json", StylePath("", nil))
}
