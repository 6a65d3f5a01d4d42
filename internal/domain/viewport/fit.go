// Package viewport переводит координаты из пикселей изображения в координаты экрана.
//
// Пакет не хранит состояния, кроме State, и не выполняет ввода-вывода.
package viewport

// Fit прямоугольник, который занимает изображение при object-fit: contain
type Fit struct {
	ImageWidth    float64 `json:"image_width"`
	ImageHeight   float64 `json:"image_height"`
	ContentWidth  float64 `json:"content_width"`
	ContentHeight float64 `json:"content_height"`
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
	Scale         float64 `json:"scale"`
}

// Empty сообщает, что размещение вычислить нельзя
func (f Fit) Empty() bool {
	return f.Scale <= 0
}

// ComputeFit вычисляет наибольший центрированный прямоугольник с пропорциями изображения,
// помещающийся в контейнер.
func ComputeFit(imageWidth, imageHeight, containerWidth, containerHeight float64) Fit {
	if !positive(imageWidth, imageHeight, containerWidth, containerHeight) {
		return Fit{ImageWidth: imageWidth, ImageHeight: imageHeight}
	}

	imageRatio := imageWidth / imageHeight
	containerRatio := containerWidth / containerHeight

	var contentWidth, contentHeight float64
	if imageRatio > containerRatio {
		contentWidth = containerWidth
		contentHeight = contentWidth / imageRatio
	} else {
		contentHeight = containerHeight
		contentWidth = contentHeight * imageRatio
	}

	return Fit{
		ImageWidth:    imageWidth,
		ImageHeight:   imageHeight,
		ContentWidth:  contentWidth,
		ContentHeight: contentHeight,
		OffsetX:       (containerWidth - contentWidth) / 2,
		OffsetY:       (containerHeight - contentHeight) / 2,
		Scale:         contentWidth / imageWidth,
	}
}

// Identity размещение один к одному для слоя размером с изображение
func Identity(imageWidth, imageHeight float64) Fit {
	return ComputeFit(imageWidth, imageHeight, imageWidth, imageHeight)
}

func positive(vs ...float64) bool {
	for _, v := range vs {
		if !(v > 0) || isInf(v) {
			return false
		}
	}
	return true
}
