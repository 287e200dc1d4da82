package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"meshboard-maps/internal/logging"
	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/geo"
	"meshboard-maps/mapsurface/pin"
)

// Medidas da superfície oculta (pixels CSS): as mesmas do widget na tela,
// assim a captura é usada 1:1 sem reamostragem.
const (
	DefaultSnapshotWidth  = 1176
	DefaultSnapshotHeight = 240

	DefaultFitPadding = 50.0
	DefaultMaxFitZoom = 15.0

	DefaultJobTimeout = 30 * time.Second

	// o estilo declara maxzoom inteiro; a superfície fica logo abaixo
	maxZoomMargin = 0.05
)

var (
	defaultCenter = geo.LngLat{Lng: 121.5654, Lat: 25.0330}
	defaultZoom   = 14.0
)

// RendererOptions configura o Renderer.
type RendererOptions struct {
	Config     domain.ConfigSource
	NewSurface domain.SurfaceFactory
	Cache      domain.ImageCache

	Width, Height int
	Padding       float64
	MaxFitZoom    float64

	// JobTimeout limita cada job de ponta a ponta (espera de tiles incluída).
	JobTimeout time.Duration

	// Painter é opcional; nil carrega o painter padrão.
	Painter *pin.Painter

	// Pace é opcional: espaça jobs consecutivos da fila.
	Pace *rate.Limiter

	// KeepCacheOnDestroy preserva o cache em Destroy. Útil quando o cache é
	// compartilhado entre processos (Redis) e um processo só está saindo.
	KeepCacheOnDestroy bool

	Logger *slog.Logger
}

// Renderer produz imagens estáticas (PNG) de um mapa com alfinetes para os
// widgets que não receberam superfície viva.
//
// Existe uma única superfície oculta, criada sob demanda e reutilizada. Os
// jobs são executados estritamente um por vez, em ordem de posição vertical
// na página, por uma goroutine de drenagem que só vive enquanto há fila.
type Renderer struct {
	config     domain.ConfigSource
	newSurface domain.SurfaceFactory
	cache      domain.ImageCache
	painter    *pin.Painter
	pace       *rate.Limiter
	logger     *slog.Logger

	keepCacheOnDestroy bool

	width, height int
	padding       float64
	maxFitZoom    float64
	jobTimeout    time.Duration

	// surfMu serializa inicialização, jobs e Destroy.
	surfMu   sync.Mutex
	surface  domain.Surface
	disabled atomic.Bool

	mu       sync.Mutex
	queue    renderQueue
	jobs     map[string]*renderJob // chave de cache -> job enfileirado ou em execução
	draining bool
	// completed avança a cada job concluído, depois da escrita no cache
	completed uint64
}

func NewRenderer(opts RendererOptions) (*Renderer, error) {
	if opts.Config == nil {
		return nil, errors.New("renderer: config source is required")
	}
	if opts.NewSurface == nil {
		return nil, errors.New("renderer: surface factory is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("renderer: image cache is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultSnapshotWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultSnapshotHeight
	}
	if opts.Padding <= 0 {
		opts.Padding = DefaultFitPadding
	}
	if opts.MaxFitZoom <= 0 {
		opts.MaxFitZoom = DefaultMaxFitZoom
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.Painter == nil {
		p, err := pin.NewPainter()
		if err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
		opts.Painter = p
	}

	return &Renderer{
		config:     opts.Config,
		newSurface: opts.NewSurface,
		cache:      opts.Cache,
		painter:    opts.Painter,
		pace:       opts.Pace,
		logger:     logging.Component(opts.Logger, "renderer"),
		width:      opts.Width,
		height:     opts.Height,
		padding:    opts.Padding,
		maxFitZoom: opts.MaxFitZoom,
		jobTimeout: opts.JobTimeout,
		jobs:       make(map[string]*renderJob),

		keepCacheOnDestroy: opts.KeepCacheOnDestroy,
	}, nil
}

// Initialize busca a configuração de tiles e cria a superfície oculta.
// É idempotente. Em caso de falha o renderer fica indisponível (todo render
// retorna nil) até Destroy; cancelamento do próprio ctx não conta como falha.
func (r *Renderer) Initialize(ctx context.Context) bool {
	r.surfMu.Lock()
	defer r.surfMu.Unlock()
	return r.initLocked(ctx)
}

func (r *Renderer) initLocked(ctx context.Context) bool {
	if r.surface != nil {
		return true
	}
	if r.disabled.Load() {
		return false
	}

	err := r.buildSurface(ctx)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		r.logger.Debug("initialize interrupted", "error", err)
		return false
	}

	r.disabled.Store(true)
	r.logger.Warn("snapshot renderer unavailable", "error", err)
	return false
}

func (r *Renderer) buildSurface(ctx context.Context) error {
	cfg, err := r.config.FetchTilesetConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetch tileset config: %w", err)
	}
	if !cfg.Enabled {
		return fmt.Errorf("%w: %s", domain.ErrMapDisabled, cfg.Message)
	}

	surface, err := r.newSurface(ctx, domain.SurfaceConfig{
		Width:    r.width,
		Height:   r.height,
		StyleURL: cfg.StyleURL,
		TileURL:  cfg.TileURL,
		TileSize: cfg.TileSize,
		Center:   defaultCenter,
		Zoom:     defaultZoom,
		MinZoom:  cfg.MinZoom,
		MaxZoom:  cfg.MaxZoom - maxZoomMargin,
	})
	if err != nil {
		return fmt.Errorf("create hidden surface: %w", err)
	}

	r.surface = surface
	r.logger.Info("hidden surface ready",
		"style", cfg.StyleURL,
		"width", r.width,
		"height", r.height,
		"min_zoom", cfg.MinZoom,
		"max_zoom", cfg.MaxZoom,
	)
	return nil
}

// Available diz se o renderer ainda pode produzir imagens.
func (r *Renderer) Available() bool { return !r.disabled.Load() }

// RenderMapToImage devolve um PNG do mapa enquadrando locations (1 a 5
// locais), ou nil em caso de falha. Resultados ficam em cache pela chave
// derivada de (locations, zoom); um acerto retorna sem enfileirar nada.
//
// anchor define a posição do pedido na fila (menor Y primeiro); nil vai para
// o fim. Pedidos idênticos simultâneos compartilham o mesmo job. Se ctx
// encerrar antes do resultado, retorna nil e o job deixa de contar com este
// chamador; um job sem ninguém esperando é descartado quando chega a vez.
func (r *Renderer) RenderMapToImage(ctx context.Context, locations []domain.Location, zoom float64, anchor domain.Anchor) []byte {
	if len(locations) == 0 || len(locations) > domain.MaxLocations {
		return nil
	}
	if r.disabled.Load() {
		return nil
	}

	key := domain.CacheKey(locations, zoom)

	r.mu.Lock()
	seen := r.completed
	r.mu.Unlock()

	if img, ok := r.cached(ctx, key); ok {
		return img
	}
	if ctx.Err() != nil {
		return nil
	}

	job, img := r.enqueue(ctx, key, locations, zoom, domain.AnchorY(anchor), seen)
	if job == nil {
		return img
	}

	select {
	case <-job.done:
		return job.img
	case <-ctx.Done():
		r.mu.Lock()
		job.waiters--
		r.mu.Unlock()
		return nil
	}
}

func (r *Renderer) cached(ctx context.Context, key string) ([]byte, bool) {
	img, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return img, ok
}

// enqueue junta o pedido ao job da mesma chave ou cria um novo. seen é o
// valor de completed antes da consulta ao cache: se algum job terminou desde
// então, o cache é consultado de novo antes de criar um job duplicado. Um
// acerto nessa segunda consulta retorna job nil e a imagem.
func (r *Renderer) enqueue(ctx context.Context, key string, locations []domain.Location, zoom, y float64, seen uint64) (*renderJob, []byte) {
	for {
		r.mu.Lock()
		if job, ok := r.jobs[key]; ok {
			job.waiters++
			r.mu.Unlock()
			return job, nil
		}
		if r.completed == seen {
			job := r.enqueueLocked(key, locations, zoom, y)
			r.mu.Unlock()
			return job, nil
		}
		seen = r.completed
		r.mu.Unlock()

		if img, ok := r.cached(ctx, key); ok {
			return nil, img
		}
	}
}

func (r *Renderer) enqueueLocked(key string, locations []domain.Location, zoom, y float64) *renderJob {
	job := &renderJob{
		id:        uuid.NewString(),
		key:       key,
		locations: append([]domain.Location(nil), locations...),
		zoom:      zoom,
		y:         y,
		waiters:   1,
		done:      make(chan struct{}),
	}
	r.jobs[key] = job
	r.queue.insert(job)
	r.logger.Debug("render job queued", "job", job.id, "key", key, "y", y, "queue", r.queue.Len())

	if !r.draining {
		r.draining = true
		go r.drain()
	}
	return job
}

// drain processa a fila um job por vez até esvaziá-la.
func (r *Renderer) drain() {
	for {
		r.mu.Lock()
		job := r.queue.pop()
		if job == nil {
			r.draining = false
			r.mu.Unlock()
			return
		}
		abandoned := job.waiters <= 0
		if abandoned {
			// fora do mapa já aqui: um pedido novo cria outro job
			delete(r.jobs, job.key)
		}
		r.mu.Unlock()

		var img []byte
		if abandoned {
			r.logger.Debug("render job dropped, no waiters", "job", job.id)
		} else {
			img = r.run(job)
		}

		job.img = img
		r.mu.Lock()
		if r.jobs[job.key] == job {
			delete(r.jobs, job.key)
		}
		r.completed++
		r.mu.Unlock()
		close(job.done)

		if abandoned {
			continue
		}

		runtime.Gosched()
		if r.pace != nil {
			if err := r.pace.Wait(context.Background()); err != nil {
				r.logger.Debug("render pacing skipped", "error", err)
			}
		}
	}
}

// run executa um job inteiro com a superfície travada; falhas viram nil.
func (r *Renderer) run(job *renderJob) (img []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	r.surfMu.Lock()
	defer r.surfMu.Unlock()

	if !r.initLocked(ctx) {
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("render job panicked", "job", job.id, "panic", p)
			img = nil
		}
	}()

	start := time.Now()
	out, err := r.capture(ctx, r.surface, job)
	if err != nil {
		r.logger.Warn("render job failed", "job", job.id, "key", job.key, "error", err)
		return nil
	}

	if err := r.cache.Set(ctx, job.key, out); err != nil {
		r.logger.Warn("cache set failed", "key", job.key, "error", err)
	}
	r.logger.Debug("render job done", "job", job.id, "bytes", len(out), "took", time.Since(start))
	return out
}

func (r *Renderer) capture(ctx context.Context, s domain.Surface, job *renderJob) ([]byte, error) {
	points := make([]geo.LngLat, len(job.locations))
	for i, loc := range job.locations {
		points[i] = loc.LngLat()
	}

	if len(points) == 1 {
		s.SetCenter(points[0])
		s.SetZoom(job.zoom)
	} else {
		s.FitBounds(geo.BoundsOf(points...), domain.FitOptions{Padding: r.padding, MaxZoom: r.maxFitZoom})
	}

	if err := s.WaitMove(ctx); err != nil {
		return nil, fmt.Errorf("wait move: %w", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("wait idle: %w", err)
	}

	markers := make([]domain.Marker, 0, len(points))
	defer func() {
		for _, m := range markers {
			m.Remove()
		}
	}()
	for _, p := range points {
		markers = append(markers, s.AddMarker(p))
	}

	if err := s.WaitFrame(ctx); err != nil {
		return nil, fmt.Errorf("wait frame: %w", err)
	}

	raw, err := s.ReadPixels()
	if err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}
	out := image.NewRGBA(image.Rect(0, 0, raw.Bounds().Dx(), raw.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), raw, raw.Bounds().Min, draw.Src)

	ratio := s.PixelRatio()
	if ratio <= 0 {
		ratio = 1
	}
	for i, loc := range job.locations {
		pt := s.Project(points[i])
		if err := r.painter.DrawMarker(out, pt.X*ratio, pt.Y*ratio, ratio, i, loc.Label); err != nil {
			return nil, fmt.Errorf("draw marker %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ClearCache descarta as imagens em cache; jobs na fila não são afetados.
func (r *Renderer) ClearCache(ctx context.Context) error {
	if err := r.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear snapshot cache: %w", err)
	}
	r.logger.Info("snapshot cache cleared")
	return nil
}

// Destroy desmonta a superfície oculta, limpa o cache (a menos que
// KeepCacheOnDestroy) e volta ao estado não inicializado. Espera o job em
// execução terminar; jobs ainda na fila reinicializam a superfície quando
// chegar a vez deles.
func (r *Renderer) Destroy() {
	r.surfMu.Lock()
	defer r.surfMu.Unlock()

	if r.surface != nil {
		r.surface.Remove()
		r.surface = nil
	}
	r.disabled.Store(false)

	if !r.keepCacheOnDestroy {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.cache.Clear(ctx); err != nil {
			r.logger.Warn("clear cache on destroy failed", "error", err)
		}
	}
	r.logger.Info("hidden surface destroyed", "cache_kept", r.keepCacheOnDestroy)
}

// QueueLen é o número de jobs aguardando (sem contar o que está executando).
func (r *Renderer) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}
