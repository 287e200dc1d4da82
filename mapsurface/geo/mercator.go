package geo

import "math"

// WorldTileSize é o tamanho do mundo em pixels no zoom 0.
// Segue a convenção dos renderizadores vetoriais (512), de modo que "zoom 14"
// enquadra a mesma área que o mapa interativo mostra.
const WorldTileSize = 512.0

// MaxLatitude é o limite de latitude da projeção Web-Mercator.
const MaxLatitude = 85.051128779806604

// WorldSize retorna a largura (e altura) do mundo em pixels para o zoom.
func WorldSize(zoom float64) float64 {
	return WorldTileSize * math.Exp2(zoom)
}

// Project converte uma coordenada em pixels absolutos do mundo no zoom dado.
func Project(p LngLat, zoom float64) Point {
	ws := WorldSize(zoom)
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, p.Lat))
	sin := math.Sin(lat * math.Pi / 180)

	return Point{
		X: (p.Lng + 180) / 360 * ws,
		Y: (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * ws,
	}
}

// Unproject é o inverso de Project.
func Unproject(pt Point, zoom float64) LngLat {
	ws := WorldSize(zoom)
	n := math.Pi - 2*math.Pi*pt.Y/ws

	return LngLat{
		Lng: pt.X/ws*360 - 180,
		Lat: 180 / math.Pi * math.Atan(math.Sinh(n)),
	}
}

// Fit calcula centro e zoom para que b caiba numa viewport width x height
// (pixels CSS) deixando padding em cada borda. O zoom nunca passa de maxZoom.
//
// Um bounds degenerado (um único ponto) resulta em maxZoom.
func Fit(b Bounds, width, height, padding, maxZoom float64) (LngLat, float64) {
	if b.Empty() {
		return LngLat{}, maxZoom
	}

	sw := Project(LngLat{Lng: b.SW.Lng, Lat: b.SW.Lat}, 0)
	ne := Project(LngLat{Lng: b.NE.Lng, Lat: b.NE.Lat}, 0)
	center := Unproject(Point{X: (sw.X + ne.X) / 2, Y: (sw.Y + ne.Y) / 2}, 0)

	dx := math.Abs(ne.X - sw.X)
	dy := math.Abs(ne.Y - sw.Y)
	availW := width - 2*padding
	availH := height - 2*padding

	if dx == 0 && dy == 0 {
		return center, maxZoom
	}
	if availW <= 0 || availH <= 0 {
		// sem espaço útil: mostra o que der no menor zoom possível
		return center, 0
	}

	scale := math.Inf(1)
	if dx > 0 {
		scale = availW / dx
	}
	if dy > 0 {
		scale = math.Min(scale, availH/dy)
	}

	zoom := math.Log2(scale)
	return center, math.Min(zoom, maxZoom)
}
