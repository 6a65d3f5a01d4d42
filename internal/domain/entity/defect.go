package entity

import (
	"math"
	"strconv"
	"strings"
)

// DefectType тип дефекта печатной платы в нижнем регистре
type DefectType string

const (
	DefectMouseBite      DefectType = "mouse_bite"
	DefectOpenCircuit    DefectType = "open_circuit"
	DefectShort          DefectType = "short"
	DefectSpur           DefectType = "spur"
	DefectSpuriousCopper DefectType = "spurious_copper"
)

// Normalize приводит тип к нижнему регистру без пробелов по краям
func (t DefectType) Normalize() DefectType {
	return DefectType(strings.ToLower(strings.TrimSpace(string(t))))
}

// Severity степень серьёзности дефекта
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// SeverityFor вычисляет степень по уверенности в процентах
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence > 80:
		return SeveritySevere
	case confidence > 50:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// BoundingBox прямоугольник дефекта в пикселях отображаемого изображения
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid проверяет, что координаты конечны и X2 >= X1, Y2 >= Y1
func (b BoundingBox) Valid() bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 >= b.X1 && b.Y2 >= b.Y1
}

// Width возвращает ширину прямоугольника
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height возвращает высоту прямоугольника
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center возвращает координаты центра прямоугольника
func (b BoundingBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// PointEstimate приблизительная позиция дефекта без прямоугольника
type PointEstimate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Defect дефект, полученный от детектора. После получения не изменяется.
type Defect struct {
	Type       DefectType     `json:"type"`
	Confidence *float64       `json:"confidence,omitempty"` // 0..100
	Severity   Severity       `json:"severity,omitempty"`
	BBox       *BoundingBox   `json:"bbox,omitempty"`
	Position   *PointEstimate `json:"position,omitempty"`
}

// HasGeometry сообщает, можно ли нарисовать дефект
func (d Defect) HasGeometry() bool {
	return (d.BBox != nil && d.BBox.Valid()) || d.Position != nil
}

// Label формирует подпись вида "short (92.5%)"
func (d Defect) Label() string {
	if d.Confidence == nil {
		return string(d.Type)
	}
	return string(d.Type) + " (" + strconv.FormatFloat(*d.Confidence, 'f', -1, 64) + "%)"
}

