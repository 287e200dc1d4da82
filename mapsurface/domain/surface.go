package domain

import (
	"context"
	"image"

	"meshboard-maps/mapsurface/geo"
)

// FitOptions controla o enquadramento de vários pontos.
type FitOptions struct {
	Padding float64
	MaxZoom float64
}

// Marker é um marcador temporário adicionado a uma superfície.
type Marker interface {
	Remove()
}

// Surface é a primitiva de mapa (contexto de renderização) usada pelo
// renderer de snapshots. As transições de câmera são sem animação; os Wait*
// bloqueiam até o sinal correspondente ou até o ctx encerrar.
//
// Uma Surface não é reentrante: quem a possui garante uso serial.
type Surface interface {
	SetCenter(c geo.LngLat)
	SetZoom(z float64)
	FitBounds(b geo.Bounds, opts FitOptions)

	// WaitMove espera a última transição de câmera assentar.
	WaitMove(ctx context.Context) error
	// WaitIdle espera não haver mais carregamentos de tiles pendentes.
	WaitIdle(ctx context.Context) error
	// WaitFrame deixa passar um quadro de renderização.
	WaitFrame(ctx context.Context) error

	// Project converte uma coordenada em pixels CSS da superfície.
	Project(p geo.LngLat) geo.Point
	AddMarker(at geo.LngLat) Marker

	// ReadPixels copia o buffer de pixels cru (em pixels do dispositivo).
	ReadPixels() (*image.RGBA, error)
	PixelRatio() float64

	// Remove destrói a superfície e libera seus recursos.
	Remove()
}

// SurfaceConfig descreve a superfície oculta que o renderer constrói.
type SurfaceConfig struct {
	Width  int
	Height int

	StyleURL string
	// TileURL é o template XYZ ({z}/{x}/{y}) da primeira fonte do estilo.
	TileURL  string
	TileSize int

	Center  geo.LngLat
	Zoom    float64
	MinZoom float64
	MaxZoom float64
}

// SurfaceFactory constrói uma superfície e só retorna depois do sinal de
// "carregada" da própria superfície.
type SurfaceFactory func(ctx context.Context, cfg SurfaceConfig) (Surface, error)
