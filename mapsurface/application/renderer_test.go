package application

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/geo"
	"meshboard-maps/mapsurface/infra"
	"meshboard-maps/mapsurface/pin"
)

// fakeSurface registra as chamadas e detecta jobs sobrepostos: um job começa
// ao mover a câmera e termina quando o último marcador é removido.
type fakeSurface struct {
	cfg domain.SurfaceConfig

	mu       sync.Mutex
	center   geo.LngLat
	zoom     float64
	centers  []geo.LngLat
	fits     []domain.FitOptions
	live     int
	inJob    bool
	overlap  bool
	removed  bool
	failLat  float64
	panicLat float64

	idleGate    chan struct{}
	idleEntered chan struct{}
}

func (f *fakeSurface) begin() {
	if f.inJob {
		f.overlap = true
	}
	f.inJob = true
}

func (f *fakeSurface) SetCenter(c geo.LngLat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begin()
	f.center = c
	f.centers = append(f.centers, c)
}

func (f *fakeSurface) SetZoom(z float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoom = z
}

func (f *fakeSurface) FitBounds(b geo.Bounds, opts domain.FitOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begin()
	f.center = b.Center()
	f.centers = append(f.centers, f.center)
	f.fits = append(f.fits, opts)
}

func (f *fakeSurface) WaitMove(ctx context.Context) error { return ctx.Err() }

func (f *fakeSurface) WaitIdle(ctx context.Context) error {
	if f.idleEntered != nil {
		select {
		case f.idleEntered <- struct{}{}:
		default:
		}
	}
	if f.idleGate == nil {
		return nil
	}
	select {
	case <-f.idleGate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSurface) WaitFrame(ctx context.Context) error { return ctx.Err() }

func (f *fakeSurface) Project(p geo.LngLat) geo.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Lat == f.panicLat && f.panicLat != 0 {
		panic("projection exploded")
	}
	return geo.Point{
		X: float64(f.cfg.Width)/2 + (p.Lng-f.center.Lng)*100,
		Y: float64(f.cfg.Height)/2 - (p.Lat-f.center.Lat)*100,
	}
}

type fakeMarker struct{ f *fakeSurface }

func (m fakeMarker) Remove() {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	m.f.live--
	if m.f.live == 0 {
		m.f.inJob = false
	}
}

func (f *fakeSurface) AddMarker(geo.LngLat) domain.Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live++
	return fakeMarker{f: f}
}

func (f *fakeSurface) ReadPixels() (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLat != 0 && f.center.Lat == f.failLat {
		return nil, errors.New("context lost")
	}
	img := image.NewRGBA(image.Rect(0, 0, f.cfg.Width, f.cfg.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

func (f *fakeSurface) PixelRatio() float64 { return 1 }

func (f *fakeSurface) Remove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = true
}

func (f *fakeSurface) snapshot() (centers []geo.LngLat, overlap bool, live int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geo.LngLat(nil), f.centers...), f.overlap, f.live
}

type fakeConfig struct {
	cfg   domain.TilesetConfig
	err   error
	calls atomic.Int32
}

func (c *fakeConfig) FetchTilesetConfig(context.Context) (domain.TilesetConfig, error) {
	c.calls.Add(1)
	return c.cfg, c.err
}

func enabledConfig() *fakeConfig {
	return &fakeConfig{cfg: domain.TilesetConfig{
		Enabled:  true,
		StyleURL: "http://tiles.local/tiles/style.json",
		TileURL:  "http://tiles.local/tiles/{z}/{x}/{y}.png",
		TileSize: 512,
		MinZoom:  0,
		MaxZoom:  16,
	}}
}

type rendererFixture struct {
	r        *Renderer
	config   *fakeConfig
	surface  *fakeSurface
	cache    *infra.MemoryImageCache
	built    []domain.SurfaceConfig
	builtMu  sync.Mutex
	surfaces atomic.Int32
}

var (
	painterOnce sync.Once
	painter     *pin.Painter
)

func sharedPainter(t *testing.T) *pin.Painter {
	painterOnce.Do(func() {
		p, err := pin.NewPainter()
		require.NoError(t, err)
		painter = p
	})
	return painter
}

func newFixture(t *testing.T, config *fakeConfig, surface *fakeSurface, opts ...func(*RendererOptions)) *rendererFixture {
	t.Helper()
	fx := &rendererFixture{config: config, surface: surface, cache: infra.NewMemoryImageCache()}

	ro := RendererOptions{
		Config: config,
		NewSurface: func(_ context.Context, cfg domain.SurfaceConfig) (domain.Surface, error) {
			fx.builtMu.Lock()
			fx.built = append(fx.built, cfg)
			fx.builtMu.Unlock()
			fx.surfaces.Add(1)
			surface.mu.Lock()
			surface.cfg = cfg
			surface.removed = false
			surface.mu.Unlock()
			return surface, nil
		},
		Cache:      fx.cache,
		Painter:    sharedPainter(t),
		JobTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&ro)
	}

	r, err := NewRenderer(ro)
	require.NoError(t, err)
	fx.r = r
	return fx
}

func loc(lat, lng float64) []domain.Location {
	return []domain.Location{{Lat: lat, Lng: lng}}
}

type movingAnchor struct{ y atomic.Int64 }

func (a *movingAnchor) PageOffsetY() float64 { return float64(a.y.Load()) }

func TestNewRenderer_RequiresCollaborators(t *testing.T) {
	_, err := NewRenderer(RendererOptions{})
	assert.Error(t, err)

	_, err = NewRenderer(RendererOptions{Config: enabledConfig()})
	assert.Error(t, err)
}

func TestRenderer_InitializeBuildsHiddenSurface(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})

	require.True(t, fx.r.Initialize(context.Background()))
	require.True(t, fx.r.Initialize(context.Background()))

	assert.Equal(t, int32(1), fx.config.calls.Load())
	assert.Equal(t, int32(1), fx.surfaces.Load())

	cfg := fx.built[0]
	assert.Equal(t, 1176, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
	assert.Equal(t, geo.LngLat{Lng: 121.5654, Lat: 25.0330}, cfg.Center)
	assert.Equal(t, 14.0, cfg.Zoom)
	assert.InDelta(t, 15.95, cfg.MaxZoom, 1e-9)
	assert.Equal(t, "http://tiles.local/tiles/{z}/{x}/{y}.png", cfg.TileURL)
}

func TestRenderer_SameInputsHitCache(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx := context.Background()

	first := fx.r.RenderMapToImage(ctx, loc(25.033, 121.5654), 14, nil)
	require.NotNil(t, first)
	second := fx.r.RenderMapToImage(ctx, loc(25.033, 121.5654), 14, nil)

	assert.Equal(t, first, second, "payloads must be byte-identical")
	centers, _, live := fx.surface.snapshot()
	assert.Len(t, centers, 1, "cache hit must not move the surface")
	assert.Equal(t, 0, live, "temporary markers must be removed")

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1176, 240), img.Bounds())
}

func TestRenderer_DrawsPinAtProjectedPoint(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})

	out := fx.r.RenderMapToImage(context.Background(), []domain.Location{{Lat: 25.033, Lng: 121.5654, Label: "101"}}, 14, nil)
	require.NotNil(t, out)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	// ponta do alfinete no centro (588,120); corpo 15px acima
	r, g, b, _ := img.At(588, 120-pin.Height+25).RGBA()
	want := pin.ColorAt(0)
	assert.Equal(t, [3]uint32{uint32(want.R), uint32(want.G), uint32(want.B)}, [3]uint32{r >> 8, g >> 8, b >> 8})

	// longe do alfinete continua o pixel capturado
	r, g, b, _ = img.At(5, 5).RGBA()
	assert.Equal(t, [3]uint32{0xFF, 0xFF, 0xFF}, [3]uint32{r >> 8, g >> 8, b >> 8})
}

func TestRenderer_MultipleLocationsFitBounds(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})

	out := fx.r.RenderMapToImage(context.Background(), []domain.Location{
		{Lat: 25.03, Lng: 121.56, Label: "a"},
		{Lat: 25.05, Lng: 121.60},
	}, 14, nil)
	require.NotNil(t, out)

	fx.surface.mu.Lock()
	defer fx.surface.mu.Unlock()
	require.Len(t, fx.surface.fits, 1)
	assert.Equal(t, domain.FitOptions{Padding: 50, MaxZoom: 15}, fx.surface.fits[0])
}

func TestRenderer_RejectsLocationCountOutOfRange(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx := context.Background()

	assert.Nil(t, fx.r.RenderMapToImage(ctx, nil, 14, nil))
	six := make([]domain.Location, domain.MaxLocations+1)
	assert.Nil(t, fx.r.RenderMapToImage(ctx, six, 14, nil))
	assert.Equal(t, int32(0), fx.surfaces.Load())
}

func TestRenderer_QueueOrderFollowsAnchorYAtEnqueue(t *testing.T) {
	surface := &fakeSurface{idleGate: make(chan struct{}), idleEntered: make(chan struct{}, 1)}
	fx := newFixture(t, enabledConfig(), surface)
	ctx := context.Background()

	var wg sync.WaitGroup
	render := func(lat float64, anchor domain.Anchor) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, fx.r.RenderMapToImage(ctx, loc(lat, 121), 14, anchor))
		}()
	}

	// o primeiro job ocupa a superfície
	render(1, domain.PageY(500))
	<-surface.idleEntered

	moving := &movingAnchor{}
	moving.y.Store(100)

	render(2, domain.PageY(300))
	render(3, moving)
	render(4, nil)
	render(5, domain.PageY(200))
	require.Eventually(t, func() bool { return fx.r.QueueLen() == 4 }, time.Second, time.Millisecond)

	// rolar a página depois de enfileirar não muda a ordem
	moving.y.Store(1000)
	close(surface.idleGate)
	wg.Wait()

	centers, overlap, _ := surface.snapshot()
	lats := make([]float64, len(centers))
	for i, c := range centers {
		lats[i] = c.Lat
	}
	assert.Equal(t, []float64{1, 3, 5, 2, 4}, lats)
	assert.False(t, overlap)
}

func TestRenderer_JobsNeverOverlap(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lat := 10 + float64(i)
			assert.NotNil(t, fx.r.RenderMapToImage(ctx, loc(lat, 120), 14, domain.PageY(float64(i%4)*100)))
		}(i)
	}
	wg.Wait()

	centers, overlap, live := fx.surface.snapshot()
	assert.Len(t, centers, 12)
	assert.False(t, overlap, "two jobs mutated the surface at the same time")
	assert.Equal(t, 0, live)
}

func TestRenderer_IdenticalQueuedRequestsShareJob(t *testing.T) {
	surface := &fakeSurface{idleGate: make(chan struct{}), idleEntered: make(chan struct{}, 1)}
	fx := newFixture(t, enabledConfig(), surface)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]byte, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil)
	}()
	<-surface.idleEntered

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fx.r.RenderMapToImage(ctx, loc(2, 2), 14, domain.PageY(float64(i)))
		}(i)
	}
	require.Eventually(t, func() bool {
		fx.r.mu.Lock()
		defer fx.r.mu.Unlock()
		job := fx.r.jobs[domain.CacheKey(loc(2, 2), 14)]
		return job != nil && job.waiters == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, fx.r.QueueLen())

	close(surface.idleGate)
	wg.Wait()

	require.NotNil(t, results[0])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
	centers, _, _ := surface.snapshot()
	assert.Len(t, centers, 2)
}

func TestRenderer_AbandonedJobIsDropped(t *testing.T) {
	surface := &fakeSurface{idleGate: make(chan struct{}), idleEntered: make(chan struct{}, 1)}
	fx := newFixture(t, enabledConfig(), surface)

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil)
	}()
	<-surface.idleEntered

	ctx, cancel := context.WithCancel(context.Background())
	gone := make(chan []byte, 1)
	go func() { gone <- fx.r.RenderMapToImage(ctx, loc(2, 2), 14, nil) }()
	require.Eventually(t, func() bool { return fx.r.QueueLen() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.Nil(t, <-gone)

	close(surface.idleGate)
	<-done
	require.Eventually(t, func() bool { return fx.r.QueueLen() == 0 }, time.Second, time.Millisecond)

	centers, _, _ := surface.snapshot()
	assert.Equal(t, []geo.LngLat{{Lng: 1, Lat: 1}}, centers)
}

func TestRenderer_CancelledCallerDoesNotEnqueue(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil))
	assert.Equal(t, 0, fx.r.QueueLen())
	assert.Equal(t, int32(0), fx.surfaces.Load())
}

func TestRenderer_JobFailureDoesNotStopQueue(t *testing.T) {
	surface := &fakeSurface{failLat: 7, panicLat: 8}
	fx := newFixture(t, enabledConfig(), surface)
	ctx := context.Background()

	assert.Nil(t, fx.r.RenderMapToImage(ctx, loc(7, 1), 14, nil))
	assert.Nil(t, fx.r.RenderMapToImage(ctx, loc(8, 1), 14, nil))
	assert.NotNil(t, fx.r.RenderMapToImage(ctx, loc(9, 1), 14, nil))
	assert.True(t, fx.r.Available())

	// falha não vai para o cache: tentar de novo move a superfície de novo
	assert.Nil(t, fx.r.RenderMapToImage(ctx, loc(7, 1), 14, nil))
	centers, _, live := surface.snapshot()
	assert.Len(t, centers, 4)
	assert.Equal(t, 0, live)
}

func TestRenderer_InitFailureDisablesRenderer(t *testing.T) {
	t.Run("config error", func(t *testing.T) {
		cfg := &fakeConfig{err: errors.New("connection refused")}
		fx := newFixture(t, cfg, &fakeSurface{})

		assert.False(t, fx.r.Initialize(context.Background()))
		assert.Nil(t, fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil))
		assert.False(t, fx.r.Available())
		assert.Equal(t, int32(1), cfg.calls.Load(), "no automatic retry")
		assert.Equal(t, int32(0), fx.surfaces.Load())
	})

	t.Run("map disabled", func(t *testing.T) {
		cfg := &fakeConfig{cfg: domain.TilesetConfig{Enabled: false, Message: "no tiles"}}
		fx := newFixture(t, cfg, &fakeSurface{})

		assert.Nil(t, fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil))
		assert.False(t, fx.r.Available())
	})

	t.Run("cancelled initialize is not a failure", func(t *testing.T) {
		fx := newFixture(t, &fakeConfig{err: context.Canceled}, &fakeSurface{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.False(t, fx.r.Initialize(ctx))
		assert.True(t, fx.r.Available())
	})
}

func TestRenderer_ClearCacheForcesRerender(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx := context.Background()

	require.NotNil(t, fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil))
	require.NoError(t, fx.r.ClearCache(ctx))
	require.NotNil(t, fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil))

	centers, _, _ := fx.surface.snapshot()
	assert.Len(t, centers, 2)
}

func TestRenderer_DestroyResetsToUninitialized(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{})
	ctx := context.Background()

	require.NotNil(t, fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil))
	require.Equal(t, 1, fx.cache.Len())
	fx.r.Destroy()

	fx.surface.mu.Lock()
	assert.True(t, fx.surface.removed)
	fx.surface.mu.Unlock()
	assert.Equal(t, 0, fx.cache.Len(), "destroy clears cached snapshots")

	require.NotNil(t, fx.r.RenderMapToImage(ctx, loc(2, 2), 14, nil))
	assert.Equal(t, int32(2), fx.surfaces.Load())
	assert.Equal(t, int32(2), fx.config.calls.Load())
}

func TestRenderer_DestroyCanKeepSharedCache(t *testing.T) {
	fx := newFixture(t, enabledConfig(), &fakeSurface{}, func(o *RendererOptions) {
		o.KeepCacheOnDestroy = true
	})

	require.NotNil(t, fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil))
	fx.r.Destroy()
	assert.Equal(t, 1, fx.cache.Len())
}

// holdHandler segura o primeiro registro com a mensagem msg até release.
type holdHandler struct {
	msg     string
	once    sync.Once
	held    chan struct{}
	release chan struct{}
}

func (h *holdHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *holdHandler) Handle(_ context.Context, rec slog.Record) error {
	if rec.Message == h.msg {
		h.once.Do(func() {
			close(h.held)
			<-h.release
		})
	}
	return nil
}

func (h *holdHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *holdHandler) WithGroup(string) slog.Handler     { return h }

func TestRenderer_RequestArrivingWhileJobIsDroppedGetsImage(t *testing.T) {
	hold := &holdHandler{msg: "render job dropped, no waiters", held: make(chan struct{}), release: make(chan struct{})}
	surface := &fakeSurface{idleGate: make(chan struct{}), idleEntered: make(chan struct{}, 1)}
	fx := newFixture(t, enabledConfig(), surface, func(o *RendererOptions) {
		o.Logger = slog.New(hold)
	})

	first := make(chan struct{})
	go func() {
		defer close(first)
		fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil)
	}()
	<-surface.idleEntered

	ctx, cancel := context.WithCancel(context.Background())
	gone := make(chan []byte, 1)
	go func() { gone <- fx.r.RenderMapToImage(ctx, loc(2, 2), 14, nil) }()
	require.Eventually(t, func() bool { return fx.r.QueueLen() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.Nil(t, <-gone)

	// o job abandonado está sendo descartado quando chega um pedido igual
	close(surface.idleGate)
	<-first
	<-hold.held

	again := make(chan []byte, 1)
	go func() { again <- fx.r.RenderMapToImage(context.Background(), loc(2, 2), 14, nil) }()
	require.Eventually(t, func() bool { return fx.r.QueueLen() == 1 }, time.Second, time.Millisecond)
	close(hold.release)

	assert.NotNil(t, <-again)
	assert.True(t, fx.r.Available())
}

// recordHandler guarda as mensagens registradas.
type recordHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, rec slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, rec.Message)
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler     { return h }

func (h *recordHandler) has(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestRenderer_PacingErrorIsLoggedAndQueueContinues(t *testing.T) {
	rec := &recordHandler{}
	fx := newFixture(t, enabledConfig(), &fakeSurface{}, func(o *RendererOptions) {
		o.Logger = slog.New(rec)
		o.Pace = rate.NewLimiter(1, 0) // burst 0: Wait sempre falha
	})
	ctx := context.Background()

	require.NotNil(t, fx.r.RenderMapToImage(ctx, loc(1, 1), 14, nil))
	assert.Eventually(t, func() bool { return rec.has("render pacing skipped") }, time.Second, time.Millisecond)
	assert.NotNil(t, fx.r.RenderMapToImage(ctx, loc(2, 2), 14, nil))
}

// gatedCache segura uma única consulta (depois de ler o resultado) até
// release, simulando um pedido lento entre o cache e a fila.
type gatedCache struct {
	*infra.MemoryImageCache
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (c *gatedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	img, ok, err := c.MemoryImageCache.Get(ctx, key)
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
	}
	return img, ok, err
}

func TestRenderer_JobFinishingAfterCacheMissIsNotRenderedTwice(t *testing.T) {
	cache := &gatedCache{
		MemoryImageCache: infra.NewMemoryImageCache(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	surface := &fakeSurface{idleGate: make(chan struct{}), idleEntered: make(chan struct{}, 1)}
	fx := newFixture(t, enabledConfig(), surface, func(o *RendererOptions) {
		o.Cache = cache
	})

	first := make(chan []byte, 1)
	go func() { first <- fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil) }()
	<-surface.idleEntered

	cache.armed.Store(true)
	second := make(chan []byte, 1)
	go func() { second <- fx.r.RenderMapToImage(context.Background(), loc(1, 1), 14, nil) }()
	<-cache.entered // a consulta já viu o cache vazio

	close(surface.idleGate)
	img := <-first
	require.NotNil(t, img)
	close(cache.release)

	assert.Equal(t, img, <-second)
	centers, _, _ := surface.snapshot()
	assert.Len(t, centers, 1)
	assert.Equal(t, 0, fx.r.QueueLen())
}

func TestRenderQueue_InsertKeepsArrivalOrderForEqualY(t *testing.T) {
	var q renderQueue
	for i, y := range []float64{5, 1, 5, math.Inf(1), 3, 1} {
		q.insert(&renderJob{id: string(rune('a' + i)), y: y})
	}

	var ids []string
	for q.Len() > 0 {
		ids = append(ids, q.pop().id)
	}
	assert.Equal(t, []string{"b", "f", "e", "a", "c", "d"}, ids)
	assert.Nil(t, q.pop())
}
