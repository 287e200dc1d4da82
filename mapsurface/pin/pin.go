// Package pin desenha os marcadores do mapa (alfinete + etiqueta) direto num
// buffer RGBA.
//
// O overlay de marcadores da superfície não entra na leitura crua de pixels,
// por isso o snapshot recebe os marcadores pintados à mão. As medidas seguem
// o marcador do mapa interativo: caixa 30x40 ancorada no centro da base.
package pin

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

const (
	// Width e Height são as dimensões do alfinete em pixels CSS.
	Width  = 30
	Height = 40

	// LabelGap é a distância entre o topo do alfinete e a base da etiqueta.
	LabelGap = 4
)

// Palette é a paleta cíclica dos marcadores, indexada pela posição do local.
var Palette = []color.RGBA{
	{0xFF, 0x52, 0x52, 0xFF},
	{0x21, 0x96, 0xF3, 0xFF},
	{0x4C, 0xAF, 0x50, 0xFF},
	{0xFF, 0xC1, 0x07, 0xFF},
	{0x9C, 0x27, 0xB0, 0xFF},
	{0xFF, 0x98, 0x00, 0xFF},
	{0x00, 0xBC, 0xD4, 0xFF},
	{0xE9, 0x1E, 0x63, 0xFF},
}

// ColorAt retorna a cor do marcador de índice i.
func ColorAt(i int) color.RGBA {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

var (
	white       = image.NewUniform(color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
	shadowColor = image.NewUniform(color.NRGBA{0, 0, 0, 77}) // rgba(0,0,0,0.3)
	textColor   = image.NewUniform(color.RGBA{0x33, 0x33, 0x33, 0xFF})
)

// sombra: blur 4 com deslocamento (0, 2), em unidades CSS
const (
	shadowBlur    = 4.0
	shadowOffsetY = 2.0
	strokeWidth   = 2.0
)

// DrawPin pinta um alfinete com a ponta em (x, y) pixels do buffer.
// scale é a razão de pixels do dispositivo.
func DrawPin(dst *image.RGBA, x, y, scale float64, fill color.Color) {
	if scale <= 0 {
		scale = 1
	}

	// canto superior esquerdo da caixa 30x40
	ox := x - Width*scale/2
	oy := y - Height*scale

	blur := blurRadius(shadowBlur * scale)
	pad := 3*blur + int(math.Ceil(strokeWidth*scale)) + 1
	r := image.Rect(
		int(math.Floor(ox))-pad,
		int(math.Floor(oy))-pad,
		int(math.Ceil(ox+Width*scale))+pad,
		int(math.Ceil(y+shadowOffsetY*scale))+pad,
	)

	half := strokeWidth / 2

	shadow := rasterize(r, func(p pen) {
		p.oy += shadowOffsetY * scale
		teardrop(p, half)
	}, ox, oy, scale)
	boxBlur(shadow, blur)
	drawMask(dst, r, shadowColor, shadow)

	// contorno branco: o traço fica metade para fora, metade para dentro
	drawMask(dst, r, white, rasterize(r, func(p pen) { teardrop(p, half) }, ox, oy, scale))
	drawMask(dst, r, image.NewUniform(fill), rasterize(r, func(p pen) { teardrop(p, -half) }, ox, oy, scale))
	drawMask(dst, r, white, rasterize(r, func(p pen) { circle(p, 15, 12, 4) }, ox, oy, scale))
}

// pen escreve num rasterizer em coordenadas locais do marcador, já aplicando
// escala e deslocamento até a máscara.
type pen struct {
	z      *vector.Rasterizer
	ox, oy float64
	s      float64
}

func (p pen) pt(x, y float64) (float32, float32) {
	return float32(p.ox + x*p.s), float32(p.oy + y*p.s)
}

func (p pen) moveTo(x, y float64) { p.z.MoveTo(p.pt(x, y)) }
func (p pen) lineTo(x, y float64) { p.z.LineTo(p.pt(x, y)) }

func (p pen) cubeTo(bx, by, cx, cy, dx, dy float64) {
	x1, y1 := p.pt(bx, by)
	x2, y2 := p.pt(cx, cy)
	x3, y3 := p.pt(dx, dy)
	p.z.CubeTo(x1, y1, x2, y2, x3, y3)
}

// rasterize cria uma máscara alfa do tamanho de r com o caminho desenhado.
// ox/oy são a origem local em coordenadas do buffer de destino.
func rasterize(r image.Rectangle, path func(pen), ox, oy, scale float64) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	path(pen{z: z, ox: ox - float64(r.Min.X), oy: oy - float64(r.Min.Y), s: scale})
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

func drawMask(dst *image.RGBA, r image.Rectangle, src image.Image, mask *image.Alpha) {
	draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
}

// teardrop traça o alfinete
//
//	M15 0 C8.373 0 3 5.373 3 12 C3 21 15 40 15 40 C15 40 27 21 27 12 C27 5.373 21.627 0 15 0 Z
//
// inflado (grow > 0) ou encolhido (grow < 0) em torno do centro da caixa.
func teardrop(p pen, grow float64) {
	const cx, cy, hw, hh = 15.0, 20.0, 12.0, 20.0
	kx := (hw + grow) / hw
	ky := (hh + grow) / hh
	t := func(x, y float64) (float64, float64) {
		return cx + (x-cx)*kx, cy + (y-cy)*ky
	}

	x0, y0 := t(15, 0)
	p.moveTo(x0, y0)

	b := [][6]float64{
		{8.373, 0, 3, 5.373, 3, 12},
		{3, 21, 15, 40, 15, 40},
		{15, 40, 27, 21, 27, 12},
		{27, 5.373, 21.627, 0, 15, 0},
	}
	for _, c := range b {
		bx, by := t(c[0], c[1])
		qx, qy := t(c[2], c[3])
		dx, dy := t(c[4], c[5])
		p.cubeTo(bx, by, qx, qy, dx, dy)
	}
	p.z.ClosePath()
}

// kappa aproxima um quarto de círculo com uma cúbica.
const kappa = 0.5522847498

func circle(p pen, cx, cy, r float64) {
	k := r * kappa
	p.moveTo(cx+r, cy)
	p.cubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	p.cubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	p.cubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	p.cubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	p.z.ClosePath()
}

// roundRect traça um retângulo de cantos arredondados; coordenadas em pixels
// do buffer (a pen deve ter escala 1).
func roundRect(p pen, x, y, w, h, r float64) {
	r = math.Min(r, math.Min(w, h)/2)
	k := r * kappa

	p.moveTo(x+r, y)
	p.lineTo(x+w-r, y)
	p.cubeTo(x+w-r+k, y, x+w, y+r-k, x+w, y+r)
	p.lineTo(x+w, y+h-r)
	p.cubeTo(x+w, y+h-r+k, x+w-r+k, y+h, x+w-r, y+h)
	p.lineTo(x+r, y+h)
	p.cubeTo(x+r-k, y+h, x, y+h-r+k, x, y+h-r)
	p.lineTo(x, y+r)
	p.cubeTo(x, y+r-k, x+r-k, y, x+r, y)
	p.z.ClosePath()
}

// blurRadius converte o shadowBlur do canvas (2 sigmas) num raio de box blur.
func blurRadius(blur float64) int {
	return int(math.Round(blur / 2))
}

// boxBlur aplica duas passadas (horizontal e vertical) de média móvel na
// máscara, o bastante para suavizar a sombra.
func boxBlur(m *image.Alpha, radius int) {
	if radius <= 0 {
		return
	}
	w, h := m.Rect.Dx(), m.Rect.Dy()
	tmp := make([]uint8, len(m.Pix))
	win := 2*radius + 1

	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride:]
		sum := 0
		for x := -radius; x <= radius; x++ {
			sum += int(at(row, x, w))
		}
		for x := 0; x < w; x++ {
			tmp[y*m.Stride+x] = uint8(sum / win)
			sum += int(at(row, x+radius+1, w)) - int(at(row, x-radius, w))
		}
	}

	col := make([]uint8, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = tmp[y*m.Stride+x]
		}
		sum := 0
		for y := -radius; y <= radius; y++ {
			sum += int(at(col, y, h))
		}
		for y := 0; y < h; y++ {
			m.Pix[y*m.Stride+x] = uint8(sum / win)
			sum += int(at(col, y+radius+1, h)) - int(at(col, y-radius, h))
		}
	}
}

func at(s []uint8, i, n int) uint8 {
	if i < 0 || i >= n {
		return 0
	}
	return s[i]
}
