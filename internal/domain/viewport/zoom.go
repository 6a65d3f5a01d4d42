package viewport

import "math"

// WheelDelta переводит deltaY колеса мыши в изменение масштаба: прокрутка вверх увеличивает
func WheelDelta(deltaY float64) float64 {
	return -deltaY * WheelSensitivity
}

// ZoomAboutPoint меняет масштаб на delta относительно указателя.
//
// При увеличении точка под указателем остаётся на месте. При уменьшении смещение
// пропорционально сжимается к центру. Если масштаб упёрся в границу, состояние не меняется.
func ZoomAboutPoint(pointer Point, delta float64, state State) State {
	if math.IsNaN(delta) || delta == 0 {
		return state
	}
	scale := state.Zoom
	if scale <= 0 {
		scale = 1
	}
	newScale := ClampZoom(scale + delta)
	if newScale == scale {
		return state
	}

	if delta > 0 {
		center := Point{X: state.ContainerWidth / 2, Y: state.ContainerHeight / 2}
		change := (newScale - scale) / scale
		state.Pan = Point{
			X: state.Pan.X - (pointer.X-center.X)*change,
			Y: state.Pan.Y - (pointer.Y-center.Y)*change,
		}
	} else {
		ratio := newScale / scale
		state.Pan = Point{X: state.Pan.X * ratio, Y: state.Pan.Y * ratio}
	}
	state.Zoom = newScale
	return state
}

// StepZoom меняет масштаб на шаг кнопки: +1 увеличивает, -1 уменьшает.
// Если масштаб вернулся к 1, смещение сбрасывается.
func StepZoom(state State, direction int) State {
	if direction == 0 {
		return state
	}
	step := ZoomStep
	if direction < 0 {
		step = -ZoomStep
	}
	// округление убирает накопленную ошибку 0.1 + 0.2
	state.Zoom = ClampZoom(math.Round((state.Zoom+step)*100) / 100)
	if state.Zoom == 1 {
		state.Pan = Point{}
	}
	return state
}

// Drag переносит содержимое в точку pan с учётом ограничения ClampPan
func Drag(state State, pan Point) State {
	state.Pan = ClampPan(pan, state.Zoom)
	return state
}
