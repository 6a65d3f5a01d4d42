// Package export рисует рамки дефектов и сохраняет результаты на диск.
package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
	"defect-console/internal/domain/viewport"
)

const strokeWidth = 2

// Annotator рисует рамки и подписи цветом типа дефекта
type Annotator struct {
	face font.Face
}

func NewAnnotator() *Annotator {
	return &Annotator{face: basicfont.Face7x13}
}

// Annotate возвращает PNG изображения с рамками дефектов
func (a *Annotator) Annotate(asset *entity.ImageAsset, defects []entity.Defect) ([]byte, error) {
	img, err := a.Render(asset, defects)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode annotated image")
	}
	return buf.Bytes(), nil
}

// Render рисует рамки поверх копии растра
func (a *Annotator) Render(asset *entity.ImageAsset, defects []entity.Defect) (*image.RGBA, error) {
	if asset == nil {
		return nil, entity.ErrNoAssets
	}
	raster, ok := asset.Handle.Raster()
	if !ok {
		return nil, entity.ErrAssetReleased
	}

	b := raster.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), raster, b.Min, draw.Src)

	fit := viewport.Identity(float64(b.Dx()), float64(b.Dy()))
	for _, o := range viewport.MapDefects(defects, fit, viewport.NewState(fit.ImageWidth, fit.ImageHeight), viewport.StaticImage) {
		c := parseHex(o.Color)
		rect := image.Rect(int(o.Box.X1), int(o.Box.Y1), int(o.Box.X2), int(o.Box.Y2))
		strokeRect(canvas, rect, c)
		a.label(canvas, rect, o.Label, c)
	}
	return canvas, nil
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
	}
}

// label подпись на цветной плашке над рамкой, у верхнего края внутри рамки
func (a *Annotator) label(dst *image.RGBA, r image.Rectangle, text string, c color.Color) {
	if text == "" {
		return
	}
	metrics := a.face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2
	width := font.MeasureString(a.face, text).Ceil() + 4

	top := r.Min.Y - height
	if top < 0 {
		top = r.Min.Y
	}
	plate := image.Rect(r.Min.X, top, r.Min.X+width, top+height)
	draw.Draw(dst, plate.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: a.face,
		Dot:  fixed.P(plate.Min.X+2, plate.Min.Y+1+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}

// parseHex разбирает цвет вида #rrggbb
func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return color.RGBA{R: 0xff, A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// Проверка реализации интерфейса
var _ port.Annotator = (*Annotator)(nil)
