package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBounds_ExtendGrowsBothCorners(t *testing.T) {
	var b Bounds
	assert.True(t, b.Empty())

	b.Extend(LngLat{Lng: 121.5, Lat: 25.0})
	b.Extend(LngLat{Lng: 121.6, Lat: 24.9})
	b.Extend(LngLat{Lng: 121.4, Lat: 25.1})

	assert.False(t, b.Empty())
	assert.Equal(t, LngLat{Lng: 121.4, Lat: 24.9}, b.SW)
	assert.Equal(t, LngLat{Lng: 121.6, Lat: 25.1}, b.NE)
	assert.InDelta(t, 121.5, b.Center().Lng, 1e-9)
	assert.InDelta(t, 25.0, b.Center().Lat, 1e-9)
}

func TestProject_RoundTrip(t *testing.T) {
	p := LngLat{Lng: 121.5654, Lat: 25.033}

	for _, z := range []float64{0, 3.5, 14, 18} {
		back := Unproject(Project(p, z), z)
		assert.InDelta(t, p.Lng, back.Lng, 1e-9, "zoom %v", z)
		assert.InDelta(t, p.Lat, back.Lat, 1e-9, "zoom %v", z)
	}
}

func TestProject_OriginAndScale(t *testing.T) {
	pt := Project(LngLat{}, 0)
	assert.InDelta(t, WorldTileSize/2, pt.X, 1e-9)
	assert.InDelta(t, WorldTileSize/2, pt.Y, 1e-9)

	// cada nível de zoom dobra as distâncias em pixel
	a := Project(LngLat{Lng: 10, Lat: 10}, 5)
	b := Project(LngLat{Lng: 10, Lat: 10}, 6)
	assert.InDelta(t, a.X*2, b.X, 1e-6)
	assert.InDelta(t, a.Y*2, b.Y, 1e-6)
}

func TestFit_SinglePointUsesMaxZoom(t *testing.T) {
	b := BoundsOf(LngLat{Lng: 121.5654, Lat: 25.033})

	center, zoom := Fit(b, 1176, 240, 50, 15)
	assert.Equal(t, 15.0, zoom)
	assert.InDelta(t, 121.5654, center.Lng, 1e-9)
	assert.InDelta(t, 25.033, center.Lat, 1e-9)
}

func TestFit_PointsStayInsidePaddedViewport(t *testing.T) {
	b := BoundsOf(
		LngLat{Lng: 121.50, Lat: 25.00},
		LngLat{Lng: 121.60, Lat: 25.08},
	)
	const w, h, pad = 1176.0, 240.0, 50.0

	center, zoom := Fit(b, w, h, pad, 15)
	assert.Less(t, zoom, 15.0)

	c := Project(center, zoom)
	for _, p := range []LngLat{b.SW, b.NE} {
		pt := Project(p, zoom)
		x := pt.X - c.X + w/2
		y := pt.Y - c.Y + h/2
		assert.GreaterOrEqual(t, x, pad-1e-6)
		assert.LessOrEqual(t, x, w-pad+1e-6)
		assert.GreaterOrEqual(t, y, pad-1e-6)
		assert.LessOrEqual(t, y, h-pad+1e-6)
	}

	// o lado limitante (vertical aqui) encosta exatamente no padding
	sw := Project(b.SW, zoom)
	ne := Project(b.NE, zoom)
	assert.InDelta(t, h-2*pad, math.Abs(sw.Y-ne.Y), 1e-6)
}

func TestFit_CapsAtMaxZoom(t *testing.T) {
	b := BoundsOf(
		LngLat{Lng: 121.56540, Lat: 25.03300},
		LngLat{Lng: 121.56541, Lat: 25.03301},
	)

	_, zoom := Fit(b, 1176, 240, 50, 15)
	assert.Equal(t, 15.0, zoom)
}
