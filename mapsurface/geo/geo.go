// Package geo reúne a geometria compartilhada entre o renderer de snapshots e
// a superfície de tiles: coordenadas geográficas, pontos em pixel, bounds e a
// projeção Web-Mercator usada para enquadrar e projetar marcadores.
package geo

import "math"

// LngLat é uma coordenada geográfica em graus (ordem longitude, latitude,
// a mesma usada pelas bibliotecas de mapa).
type LngLat struct {
	Lng float64
	Lat float64
}

// Point é uma posição em pixels (CSS) sobre a superfície.
type Point struct {
	X float64
	Y float64
}

// Bounds é um retângulo geográfico que cresce conforme pontos são adicionados.
// O valor zero é um bounds vazio.
type Bounds struct {
	SW LngLat
	NE LngLat

	set bool
}

// BoundsOf monta o menor bounds que contém todos os pontos.
func BoundsOf(points ...LngLat) Bounds {
	var b Bounds
	for _, p := range points {
		b.Extend(p)
	}
	return b
}

func (b *Bounds) Extend(p LngLat) {
	if !b.set {
		b.SW, b.NE, b.set = p, p, true
		return
	}
	b.SW.Lng = math.Min(b.SW.Lng, p.Lng)
	b.SW.Lat = math.Min(b.SW.Lat, p.Lat)
	b.NE.Lng = math.Max(b.NE.Lng, p.Lng)
	b.NE.Lat = math.Max(b.NE.Lat, p.Lat)
}

func (b Bounds) Empty() bool { return !b.set }

// Center é o ponto médio geográfico (não o projetado).
func (b Bounds) Center() LngLat {
	return LngLat{
		Lng: (b.SW.Lng + b.NE.Lng) / 2,
		Lat: (b.SW.Lat + b.NE.Lat) / 2,
	}
}
