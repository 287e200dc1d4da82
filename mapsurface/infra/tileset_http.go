package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"meshboard-maps/mapsurface/domain"
)

const (
	defaultMinZoom  = 0
	defaultMaxZoom  = 22
	defaultTileSize = 512

	maxConfigBody = 4 << 20
)

// HTTPConfigSource busca a configuração de mapa no backend:
//
//  1. GET <base>/api/available-tilesets
//  2. GET do style.json escolhido
//
// Os limites de zoom e o template de tiles vêm da primeira fonte declarada
// no estilo (ordem do documento).
type HTTPConfigSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPConfigSource(baseURL string, timeout time.Duration) *HTTPConfigSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPConfigSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type availableTilesets struct {
	Success    bool             `json:"success"`
	MapEnabled *bool            `json:"map_enabled"`
	Message    string           `json:"message"`
	LayerMode  string           `json:"layer_mode"`
	Tilesets   []domain.Tileset `json:"tilesets"`
}

// firstSource é o recorte da primeira fonte do estilo que interessa aqui.
type firstSource struct {
	found    bool
	tiles    []string
	tileSize int
	minZoom  float64
	maxZoom  float64
}

func (s *HTTPConfigSource) FetchTilesetConfig(ctx context.Context) (domain.TilesetConfig, error) {
	var avail availableTilesets
	body, err := s.get(ctx, s.BaseURL+"/api/available-tilesets")
	if err != nil {
		return domain.TilesetConfig{}, err
	}
	if err := jsoniter.Unmarshal(body, &avail); err != nil {
		return domain.TilesetConfig{}, fmt.Errorf("decode available-tilesets: %w", err)
	}

	cfg := domain.TilesetConfig{
		Enabled:   avail.Success && (avail.MapEnabled == nil || *avail.MapEnabled),
		Message:   avail.Message,
		LayerMode: avail.LayerMode,
		Tilesets:  avail.Tilesets,
		MinZoom:   defaultMinZoom,
		MaxZoom:   defaultMaxZoom,
		TileSize:  defaultTileSize,
	}
	if !cfg.Enabled {
		return cfg, nil
	}

	cfg.StyleURL = s.BaseURL + StylePath(avail.LayerMode, avail.Tilesets)
	body, err = s.get(ctx, cfg.StyleURL)
	if err != nil {
		return domain.TilesetConfig{}, err
	}
	src, err := parseFirstSource(body)
	if err != nil {
		return domain.TilesetConfig{}, fmt.Errorf("decode style %s: %w", cfg.StyleURL, err)
	}
	if !src.found {
		return cfg, nil
	}

	cfg.MinZoom, cfg.MaxZoom = src.minZoom, src.maxZoom
	if src.tileSize > 0 {
		cfg.TileSize = src.tileSize
	}
	if len(src.tiles) > 0 {
		cfg.TileURL, err = resolveURL(cfg.StyleURL, src.tiles[0])
		if err != nil {
			return domain.TilesetConfig{}, err
		}
	}
	return cfg, nil
}

// StylePath escolhe o style.json: por tileset quando o modo é "single" e há
// exatamente um tileset; caso contrário o estilo combinado.
func StylePath(layerMode string, tilesets []domain.Tileset) string {
	if layerMode == "single" && len(tilesets) == 1 && tilesets[0].Name != "" {
		return "/tiles/" + url.PathEscape(tilesets[0].Name) + "/style.json"
	}
	return "/tiles/style.json"
}

func (s *HTTPConfigSource) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", target, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return body, nil
}

// parseFirstSource percorre o estilo em streaming para respeitar a ordem das
// chaves em "sources" (um map Go perderia essa ordem).
func parseFirstSource(body []byte) (firstSource, error) {
	src := firstSource{minZoom: defaultMinZoom, maxZoom: defaultMaxZoom}

	iter := jsoniter.ConfigDefault.BorrowIterator(body)
	defer jsoniter.ConfigDefault.ReturnIterator(iter)

	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != "sources" {
			it.Skip()
			return true
		}
		it.ReadObjectCB(func(it *jsoniter.Iterator, _ string) bool {
			if src.found {
				it.Skip()
				return true
			}
			src.found = true
			readSource(it, &src)
			return true
		})
		return true
	})

	if iter.Error != nil && iter.Error != io.EOF {
		return firstSource{}, iter.Error
	}
	return src, nil
}

func readSource(it *jsoniter.Iterator, src *firstSource) {
	it.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case "minzoom":
			if z, ok := readZoom(it); ok {
				src.minZoom = z
			}
		case "maxzoom":
			// 0 ou null também valem como ausente
			if z, ok := readZoom(it); ok && z > 0 {
				src.maxZoom = z
			}
		case "tileSize":
			src.tileSize = it.ReadInt()
		case "tiles":
			it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
				src.tiles = append(src.tiles, it.ReadString())
				return true
			})
		default:
			it.Skip()
		}
		return true
	})
}

func readZoom(it *jsoniter.Iterator) (float64, bool) {
	if it.WhatIsNext() == jsoniter.NilValue {
		it.ReadNil()
		return 0, false
	}
	return it.ReadFloat64(), true
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse style url: %w", err)
	}
	// os placeholders {z}/{x}/{y} não podem ser escapados
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if strings.HasPrefix(ref, "/") {
		return b.Scheme + "://" + b.Host + ref, nil
	}
	dir := b.Path[:strings.LastIndex(b.Path, "/")+1]
	return b.Scheme + "://" + b.Host + dir + ref, nil
}
