package viewport

import (
	"math"

	"defect-console/internal/domain/entity"
)

// PresentationMode способ отображения, от которого зависит формула перевода координат
type PresentationMode int

const (
	// StaticImage изображение и рамки лежат в одном слое, к которому применяются масштаб и смещение
	StaticImage PresentationMode = iota
	// LiveCamera видео вписано через contain, слой рамок не вписан и не масштабируется
	LiveCamera
)

func (m PresentationMode) String() string {
	if m == LiveCamera {
		return "live_camera"
	}
	return "static_image"
}

// Размер маркера для дефекта, у которого есть только позиция
const (
	MarkerWidth  = 60.0
	MarkerHeight = 40.0
)

// ScreenBox прямоугольник в координатах экрана
type ScreenBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width ширина прямоугольника на экране
func (b ScreenBox) Width() float64 { return b.X2 - b.X1 }

// Height высота прямоугольника на экране
func (b ScreenBox) Height() float64 { return b.Y2 - b.Y1 }

// Overlay рамка одного дефекта, готовая к отрисовке
type Overlay struct {
	Box    ScreenBox         `json:"box"`
	Type   entity.DefectType `json:"type"`
	Label  string            `json:"label"`
	Color  string            `json:"color"`
	Marker bool              `json:"marker,omitempty"`
}

// MapPoint переводит точку изображения в координаты экрана
func MapPoint(x, y float64, fit Fit, state State, mode PresentationMode) (Point, bool) {
	switch mode {
	case LiveCamera:
		if fit.Empty() {
			return Point{}, false
		}
		return Point{X: x*fit.Scale + fit.OffsetX, Y: y*fit.Scale + fit.OffsetY}, true
	default:
		if !positive(fit.ImageWidth, fit.ImageHeight) {
			return Point{}, false
		}
		// transform: scale(z) translate(pan/z) относительно центра слоя
		cx, cy := fit.ImageWidth/2, fit.ImageHeight/2
		zoom := state.Zoom
		if zoom == 0 {
			zoom = 1
		}
		return Point{
			X: cx + zoom*(x-cx) + state.Pan.X,
			Y: cy + zoom*(y-cy) + state.Pan.Y,
		}, true
	}
}

// MapBox переводит прямоугольник дефекта в координаты экрана.
// Для некорректного прямоугольника возвращает false: такую рамку не рисуют.
func MapBox(box entity.BoundingBox, fit Fit, state State, mode PresentationMode) (ScreenBox, bool) {
	if !box.Valid() {
		return ScreenBox{}, false
	}
	p1, ok := MapPoint(box.X1, box.Y1, fit, state, mode)
	if !ok {
		return ScreenBox{}, false
	}
	p2, ok := MapPoint(box.X2, box.Y2, fit, state, mode)
	if !ok {
		return ScreenBox{}, false
	}
	return ScreenBox{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}, true
}

// MapMarker строит маркер вокруг позиции дефекта. В слое статичного изображения маркер
// масштабируется вместе со слоем, поверх видео размер маркера постоянный.
func MapMarker(pos entity.PointEstimate, fit Fit, state State, mode PresentationMode) (ScreenBox, bool) {
	if mode == StaticImage {
		return MapBox(entity.BoundingBox{
			X1: pos.X - MarkerWidth/2,
			Y1: pos.Y - MarkerHeight/2,
			X2: pos.X + MarkerWidth/2,
			Y2: pos.Y + MarkerHeight/2,
		}, fit, state, mode)
	}
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || isInf(pos.X) || isInf(pos.Y) {
		return ScreenBox{}, false
	}
	p, ok := MapPoint(pos.X-MarkerWidth/2, pos.Y-MarkerHeight/2, fit, state, mode)
	if !ok {
		return ScreenBox{}, false
	}
	return ScreenBox{X1: p.X, Y1: p.Y, X2: p.X + MarkerWidth, Y2: p.Y + MarkerHeight}, true
}

// MapDefects строит рамки для списка дефектов, пропуская дефекты без корректной геометрии
func MapDefects(defects []entity.Defect, fit Fit, state State, mode PresentationMode) []Overlay {
	out := make([]Overlay, 0, len(defects))
	for _, d := range defects {
		var (
			box    ScreenBox
			ok     bool
			marker bool
		)
		switch {
		case d.BBox != nil:
			box, ok = MapBox(*d.BBox, fit, state, mode)
		case d.Position != nil:
			box, ok = MapMarker(*d.Position, fit, state, mode)
			marker = true
		}
		if !ok {
			continue
		}
		out = append(out, Overlay{
			Box:    box,
			Type:   d.Type,
			Label:  d.Label(),
			Color:  ColorFor(d.Type),
			Marker: marker,
		})
	}
	return out
}

var defectColors = map[entity.DefectType]string{
	entity.DefectMouseBite:      "#ff7875",
	entity.DefectOpenCircuit:    "#40a9ff",
	entity.DefectShort:          "#ffc53d",
	entity.DefectSpur:           "#73d13d",
	entity.DefectSpuriousCopper: "#9254de",
}

// ColorFor возвращает цвет рамки для типа дефекта
func ColorFor(t entity.DefectType) string {
	if c, ok := defectColors[t.Normalize()]; ok {
		return c
	}
	return "#ff7875"
}
