package tilesurface

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoders de tiles
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	_ "golang.org/x/image/webp"
)

const maxTileBytes = 8 << 20

// tileID é um tile XYZ.
type tileID struct {
	z, x, y int
}

func (t tileID) String() string { return fmt.Sprintf("%d/%d/%d", t.z, t.x, t.y) }

// tileSource busca e decodifica tiles de um template XYZ, com cache ARC dos
// tiles já decodificados.
type tileSource struct {
	template string
	client   *http.Client
	cache    *lru.ARCCache
	parallel int
	logger   *slog.Logger
}

func newTileSource(template string, client *http.Client, cacheSize, parallel int, logger *slog.Logger) (*tileSource, error) {
	cache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("tile cache: %w", err)
	}
	if parallel <= 0 {
		parallel = 1
	}
	return &tileSource{
		template: template,
		client:   client,
		cache:    cache,
		parallel: parallel,
		logger:   logger,
	}, nil
}

func (s *tileSource) url(t tileID) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.z),
		"{x}", strconv.Itoa(t.x),
		"{y}", strconv.Itoa(t.y),
	)
	return r.Replace(s.template)
}

// fetchAll busca os tiles em paralelo (no máximo s.parallel por vez).
// Tiles que falharem ficam fora do mapa retornado; só ctx encerrado é erro.
func (s *tileSource) fetchAll(ctx context.Context, ids []tileID) (map[tileID]image.Image, error) {
	out := make(map[tileID]image.Image, len(ids))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.parallel)
	)

	for _, id := range ids {
		if img, ok := s.cache.Get(id); ok {
			out[id] = img.(image.Image)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(id tileID) {
			defer wg.Done()
			defer func() { <-sem }()

			img, err := s.fetch(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("tile unavailable", "tile", id.String(), "error", err)
				}
				return
			}
			s.cache.Add(id, img)

			mu.Lock()
			out[id] = img
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *tileSource) fetch(ctx context.Context, id tileID) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	img, format, err := image.Decode(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	s.logger.Debug("tile loaded", "tile", id.String(), "format", format)
	return img, nil
}

func (s *tileSource) purge() { s.cache.Purge() }
