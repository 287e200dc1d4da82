// Package tilesurface implementa domain.Surface sobre tiles raster XYZ.
//
// É uma superfície de software: a câmera salta sem animação, os tiles do
// enquadramento atual são buscados em WaitIdle e compostos num buffer RGBA
// em pixels do dispositivo. Zoom fracionário é resolvido escalando os tiles
// do nível inteiro abaixo.
package tilesurface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"meshboard-maps/internal/logging"
	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/geo"
)

var ErrRemoved = errors.New("surface removed")

// Options são os parâmetros da superfície que não vêm do estilo.
type Options struct {
	PixelRatio float64

	Client *http.Client

	// CacheSize é o número de tiles decodificados mantidos (ARC).
	CacheSize int
	// Parallel é o máximo de downloads simultâneos de tiles.
	Parallel int

	FrameInterval time.Duration
	Background    color.Color

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.PixelRatio <= 0 {
		o.PixelRatio = 1
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 256
	}
	if o.Parallel <= 0 {
		o.Parallel = 6
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
	if o.Background == nil {
		o.Background = color.RGBA{0xE8, 0xE8, 0xE8, 0xFF}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// NewFactory devolve uma domain.SurfaceFactory que cria superfícies com opts.
func NewFactory(opts Options) domain.SurfaceFactory {
	return func(ctx context.Context, cfg domain.SurfaceConfig) (domain.Surface, error) {
		return New(ctx, cfg, opts)
	}
}

type Surface struct {
	cfg  domain.SurfaceConfig
	opts Options

	bounds       image.Rectangle // pixels do dispositivo
	tiles        *tileSource
	tileLevelMax int
	zoomOffset   float64 // log2(512 / tileSize)

	mu      sync.Mutex
	center  geo.LngLat
	zoom    float64
	dirty   bool
	frame   *image.RGBA
	markers map[*marker]struct{}
	removed bool
}

// New cria a superfície e renderiza o enquadramento inicial ("load").
// Tiles que falharem não impedem a criação.
func New(ctx context.Context, cfg domain.SurfaceConfig, opts Options) (*Surface, error) {
	opts.defaults()

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("tilesurface: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TileURL == "" {
		return nil, errors.New("tilesurface: style has no raster tile source")
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = int(geo.WorldTileSize)
	}
	if cfg.MaxZoom <= 0 || cfg.MaxZoom < cfg.MinZoom {
		cfg.MaxZoom = 22
	}

	logger := logging.Component(opts.Logger, "tilesurface")
	tiles, err := newTileSource(cfg.TileURL, opts.Client, opts.CacheSize, opts.Parallel, logger)
	if err != nil {
		return nil, err
	}

	devW := int(math.Round(float64(cfg.Width) * opts.PixelRatio))
	devH := int(math.Round(float64(cfg.Height) * opts.PixelRatio))

	s := &Surface{
		cfg:          cfg,
		opts:         opts,
		bounds:       image.Rect(0, 0, devW, devH),
		tiles:        tiles,
		tileLevelMax: int(math.Ceil(cfg.MaxZoom)),
		zoomOffset:   math.Log2(geo.WorldTileSize / float64(cfg.TileSize)),
		center:       cfg.Center,
		zoom:         clamp(cfg.Zoom, cfg.MinZoom, cfg.MaxZoom),
		dirty:        true,
		frame:        image.NewRGBA(image.Rect(0, 0, devW, devH)),
		markers:      make(map[*marker]struct{}),
	}
	s.opts.Logger = logger

	if err := s.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("tilesurface: load: %w", err)
	}
	return s, nil
}

func (s *Surface) SetCenter(c geo.LngLat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = c
	s.dirty = true
}

func (s *Surface) SetZoom(z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = clamp(z, s.cfg.MinZoom, s.cfg.MaxZoom)
	s.dirty = true
}

func (s *Surface) FitBounds(b geo.Bounds, opts domain.FitOptions) {
	maxZoom := s.cfg.MaxZoom
	if opts.MaxZoom > 0 {
		maxZoom = math.Min(maxZoom, opts.MaxZoom)
	}
	center, zoom := geo.Fit(b, float64(s.cfg.Width), float64(s.cfg.Height), opts.Padding, maxZoom)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = center
	s.zoom = clamp(zoom, s.cfg.MinZoom, s.cfg.MaxZoom)
	s.dirty = true
}

// WaitMove retorna na hora: não há animação de câmera.
func (s *Surface) WaitMove(ctx context.Context) error {
	return ctx.Err()
}

// WaitIdle busca e compõe os tiles do enquadramento atual, se mudou.
func (s *Surface) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return ErrRemoved
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	v := s.viewLocked()
	s.mu.Unlock()

	frame, err := s.compose(ctx, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a câmera pode ter mudado durante a busca; nesse caso continua suja
	if s.viewLocked() == v {
		s.frame = frame
		s.dirty = false
	}
	return nil
}

// WaitFrame deixa passar um intervalo de quadro.
func (s *Surface) WaitFrame(ctx context.Context) error {
	t := time.NewTimer(s.opts.FrameInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Project converte p em pixels CSS relativos ao canto superior esquerdo.
func (s *Surface) Project(p geo.LngLat) geo.Point {
	s.mu.Lock()
	v := s.viewLocked()
	s.mu.Unlock()

	pt := geo.Project(p, v.zoom)
	c := geo.Project(v.center, v.zoom)
	return geo.Point{
		X: pt.X - c.X + float64(s.cfg.Width)/2,
		Y: pt.Y - c.Y + float64(s.cfg.Height)/2,
	}
}

func (s *Surface) AddMarker(at geo.LngLat) domain.Marker {
	m := &marker{s: s, at: at}
	s.mu.Lock()
	s.markers[m] = struct{}{}
	s.mu.Unlock()
	return m
}

// MarkerCount é o número de marcadores ainda na superfície.
func (s *Surface) MarkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// ReadPixels devolve uma cópia do quadro atual em pixels do dispositivo.
func (s *Surface) ReadPixels() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil, ErrRemoved
	}
	out := image.NewRGBA(s.frame.Bounds())
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

func (s *Surface) PixelRatio() float64 { return s.opts.PixelRatio }

func (s *Surface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	s.markers = make(map[*marker]struct{})
	s.tiles.purge()
}

// Camera devolve centro e zoom atuais.
func (s *Surface) Camera() (geo.LngLat, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.zoom
}

type view struct {
	center geo.LngLat
	zoom   float64
}

func (s *Surface) viewLocked() view { return view{center: s.center, zoom: s.zoom} }

// compose monta o quadro de v num buffer novo.
func (s *Surface) compose(ctx context.Context, v view) (*image.RGBA, error) {
	ratio := s.opts.PixelRatio
	frame := image.NewRGBA(s.bounds)
	draw.Draw(frame, frame.Bounds(), image.NewUniform(s.opts.Background), image.Point{}, draw.Src)

	level := int(math.Floor(v.zoom + s.zoomOffset))
	if level < 0 {
		level = 0
	}
	if level > s.tileLevelMax {
		level = s.tileLevelMax
	}
	n := 1 << level

	c := geo.Project(v.center, v.zoom)
	originX := c.X*ratio - float64(s.bounds.Dx())/2
	originY := c.Y*ratio - float64(s.bounds.Dy())/2
	tilePx := geo.WorldSize(v.zoom) * ratio / float64(n)

	x0 := int(math.Floor(originX / tilePx))
	x1 := int(math.Floor((originX + float64(s.bounds.Dx())) / tilePx))
	y0 := max(0, int(math.Floor(originY/tilePx)))
	y1 := min(n-1, int(math.Floor((originY+float64(s.bounds.Dy()))/tilePx)))

	type placement struct {
		id   tileID
		rect image.Rectangle
	}
	var (
		ids    []tileID
		places []placement
		seen   = make(map[tileID]bool)
	)
	for ty := y0; ty <= y1; ty++ {
		for tx := x0; tx <= x1; tx++ {
			id := tileID{z: level, x: ((tx % n) + n) % n, y: ty}
			rect := image.Rect(
				int(math.Round(float64(tx)*tilePx-originX)),
				int(math.Round(float64(ty)*tilePx-originY)),
				int(math.Round(float64(tx+1)*tilePx-originX)),
				int(math.Round(float64(ty+1)*tilePx-originY)),
			)
			places = append(places, placement{id: id, rect: rect})
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	tiles, err := s.tiles.fetchAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range places {
		img, ok := tiles[p.id]
		if !ok {
			continue
		}
		if p.rect.Dx() == img.Bounds().Dx() && p.rect.Dy() == img.Bounds().Dy() {
			xdraw.Copy(frame, p.rect.Min, img, img.Bounds(), xdraw.Src, nil)
			continue
		}
		xdraw.BiLinear.Scale(frame, p.rect, img, img.Bounds(), xdraw.Src, nil)
	}
	return frame, nil
}

type marker struct {
	s  *Surface
	at geo.LngLat
}

func (m *marker) Remove() {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.markers, m)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
