package viewport

import "math"

// Ограничения масштаба
const (
	MinZoom  = 0.5
	MaxZoom  = 2.0
	ZoomStep = 0.1

	// ReferenceExtent базовый размер, от которого считается допустимое смещение
	ReferenceExtent = 300.0

	// WheelSensitivity переводит deltaY колеса мыши в изменение масштаба
	WheelSensitivity = 0.005
)

// Point точка или смещение в пикселях экрана
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State масштаб, смещение и размер контейнера
type State struct {
	Zoom            float64 `json:"zoom"`
	Pan             Point   `json:"pan"`
	ContainerWidth  float64 `json:"container_width"`
	ContainerHeight float64 `json:"container_height"`
}

// NewState создаёт состояние без масштаба и смещения
func NewState(containerWidth, containerHeight float64) State {
	return State{Zoom: 1, ContainerWidth: containerWidth, ContainerHeight: containerHeight}
}

// Reset возвращает масштаб 1 и нулевое смещение, размер контейнера сохраняется
func (s State) Reset() State {
	s.Zoom = 1
	s.Pan = Point{}
	return s
}

// Resize меняет размер контейнера
func (s State) Resize(width, height float64) State {
	s.ContainerWidth = width
	s.ContainerHeight = height
	return s
}

// ClampZoom ограничивает масштаб диапазоном [MinZoom, MaxZoom]
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) {
		return 1
	}
	return math.Min(math.Max(zoom, MinZoom), MaxZoom)
}

// ClampPan ограничивает смещение величиной ReferenceExtent*|zoom-1|.
// При zoom = 1 смещение всегда нулевое.
func ClampPan(pan Point, zoom float64) Point {
	bound := ReferenceExtent * math.Abs(zoom-1)
	if !(bound > 0) || isInf(bound) {
		return Point{}
	}
	return Point{X: clamp(pan.X, -bound, bound), Y: clamp(pan.Y, -bound, bound)}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}

func isInf(v float64) bool {
	return math.IsInf(v, 0)
}
