package domain

import (
	"math"
	"strconv"
	"strings"

	"meshboard-maps/mapsurface/geo"
)

// MaxLocations é o máximo de locais num único snapshot.
const MaxLocations = 5

// Location é um ponto marcado no mapa, com etiqueta opcional.
type Location struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label,omitempty"`
}

func (l Location) LngLat() geo.LngLat { return geo.LngLat{Lng: l.Lng, Lat: l.Lat} }

// CacheKey gera a chave determinística de um snapshot:
// "lat,lng,label|lat,lng,label:zoom", coordenadas com 6 casas decimais.
func CacheKey(locations []Location, zoom float64) string {
	var b strings.Builder
	for i, l := range locations {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(l.Lat, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(l.Lng, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(l.Label)
	}
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(zoom, 'f', -1, 64))
	return b.String()
}

// Anchor é o elemento que originou o pedido de snapshot. A posição vertical
// na página (no momento do enfileiramento) decide a ordem da fila.
type Anchor interface {
	PageOffsetY() float64
}

// PageY é um Anchor fixo, útil quando só a coordenada é conhecida
// (ex.: vinda de uma requisição HTTP).
type PageY float64

func (y PageY) PageOffsetY() float64 { return float64(y) }

// AnchorY devolve a posição do anchor; sem anchor o pedido vai para o fim.
func AnchorY(a Anchor) float64 {
	if a == nil {
		return math.Inf(1)
	}
	y := a.PageOffsetY()
	if math.IsNaN(y) {
		return math.Inf(1)
	}
	return y
}
