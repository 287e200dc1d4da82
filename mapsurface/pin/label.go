package pin

import (
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// medidas da etiqueta em pixels CSS
const (
	labelFontSize = 12.0
	labelPadX     = 6.0
	labelHeight   = 20.0
	labelRadius   = 3.0
	labelTextLift = 4.0
)

// Painter pinta marcadores completos (alfinete + etiqueta opcional).
//
// Mantém as faces de fonte por tamanho; as faces do opentype não são seguras
// para uso concorrente, então todo desenho de texto passa pelo mutex.
type Painter struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewPainter carrega a fonte Go Bold embutida.
func NewPainter() (*Painter, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	return &Painter{font: f, faces: make(map[float64]font.Face)}, nil
}

// DrawMarker pinta o marcador de índice index com a ponta em (x, y).
func (p *Painter) DrawMarker(dst *image.RGBA, x, y, scale float64, index int, label string) error {
	DrawPin(dst, x, y, scale, ColorAt(index))
	if label == "" {
		return nil
	}
	return p.DrawLabel(dst, x, y, scale, label)
}

// DrawLabel pinta a etiqueta centralizada acima de um alfinete cuja ponta
// está em (x, y).
func (p *Painter) DrawLabel(dst *image.RGBA, x, y, scale float64, text string) error {
	if scale <= 0 {
		scale = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	face, err := p.face(labelFontSize * scale)
	if err != nil {
		return err
	}

	textW := fixedToFloat(font.MeasureString(face, text))
	w := textW + 2*labelPadX*scale
	h := labelHeight * scale
	bottom := y - Height*scale - LabelGap*scale
	left := x - w/2
	top := bottom - h
	radius := labelRadius * scale

	blur := blurRadius(shadowBlur * scale)
	pad := 3*blur + 1
	r := image.Rect(
		int(math.Floor(left))-pad,
		int(math.Floor(top))-pad,
		int(math.Ceil(left+w))+pad,
		int(math.Ceil(bottom+shadowOffsetY*scale))+pad,
	)

	shadow := rasterize(r, func(pe pen) {
		roundRect(pe, left, top+shadowOffsetY*scale, w, h, radius)
	}, 0, 0, 1)
	boxBlur(shadow, blur)
	drawMask(dst, r, shadowColor, shadow)
	drawMask(dst, r, white, rasterize(r, func(pe pen) {
		roundRect(pe, left, top, w, h, radius)
	}, 0, 0, 1))

	// textBaseline "bottom": a base da caixa do texto fica labelTextLift acima
	// da borda inferior da etiqueta
	baseline := bottom - labelTextLift*scale - fixedToFloat(face.Metrics().Descent)
	d := font.Drawer{
		Dst:  dst,
		Src:  textColor,
		Face: face,
		Dot:  fixed.Point26_6{X: floatToFixed(x - textW/2), Y: floatToFixed(baseline)},
	}
	d.DrawString(text)
	return nil
}

// Close libera as faces em cache.
func (p *Painter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for size, f := range p.faces {
		_ = f.Close()
		delete(p.faces, size)
	}
	return nil
}

func (p *Painter) face(size float64) (font.Face, error) {
	if f, ok := p.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(p.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("label face %.1fpx: %w", size, err)
	}
	p.faces[size] = f
	return f, nil
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
func floatToFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }
