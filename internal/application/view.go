package app

import (
	"time"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/viewport"
)

// SelectAsset делает изображение пакета текущим и показывает его сохранённый результат.
// Во время пакетного запуска переключение запрещено.
func (s *DetectionSession) SelectAsset(index int) error {
	s.mu.Lock()
	if s.session.Mode == entity.ModeBatch || s.session.Mode == entity.ModeSingleShot {
		s.mu.Unlock()
		return entity.ErrInvalidTransition
	}
	if index < 0 || index >= len(s.assets) {
		s.mu.Unlock()
		return entity.ErrIndexOutOfRange
	}
	s.session.CurrentIndex = index
	s.active = s.assets[index]
	s.result = nil
	for _, h := range s.history {
		if h.Index == index {
			s.result = h.Result
			break
		}
	}
	s.view = s.view.Reset()
	result := s.result
	s.mu.Unlock()

	now := time.Now()
	events := []entity.Event{{Kind: entity.EventAssetSelected, At: now, Index: index}}
	if result != nil {
		events = append(events, entity.Event{Kind: entity.EventResultDisplayed, At: now, Index: index, Result: result})
	} else {
		events = append(events, entity.Event{Kind: entity.EventOverlayCleared, At: now, Index: index})
	}
	s.emit(events...)
	return nil
}

// Zoom масштабирует колесом мыши относительно указателя
func (s *DetectionSession) Zoom(pointer viewport.Point, deltaY float64) viewport.State {
	return s.updateView(func(v viewport.State, layerW, layerH float64) viewport.State {
		// в режиме изображения центр масштабирования совпадает с центром слоя
		probe := v
		if layerW > 0 && layerH > 0 {
			probe = probe.Resize(layerW, layerH)
		}
		next := viewport.ZoomAboutPoint(pointer, viewport.WheelDelta(deltaY), probe)
		v.Zoom, v.Pan = next.Zoom, next.Pan
		return v
	})
}

// ZoomStep масштабирует кнопкой: direction > 0 увеличивает, < 0 уменьшает
func (s *DetectionSession) ZoomStep(direction int) viewport.State {
	return s.updateView(func(v viewport.State, _, _ float64) viewport.State {
		return viewport.StepZoom(v, direction)
	})
}

// PanTo перетаскивает содержимое в указанное смещение
func (s *DetectionSession) PanTo(pan viewport.Point) viewport.State {
	return s.updateView(func(v viewport.State, _, _ float64) viewport.State {
		return viewport.Drag(v, pan)
	})
}

// ResizeContainer сообщает новый размер области отображения
func (s *DetectionSession) ResizeContainer(width, height float64) viewport.State {
	return s.updateView(func(v viewport.State, _, _ float64) viewport.State {
		if width < 0 {
			width = 0
		}
		if height < 0 {
			height = 0
		}
		return v.Resize(width, height)
	})
}

// ResetViewport возвращает масштаб 1 и нулевое смещение
func (s *DetectionSession) ResetViewport() viewport.State {
	return s.updateView(func(v viewport.State, _, _ float64) viewport.State {
		return v.Reset()
	})
}

// Viewport возвращает текущее состояние области отображения
func (s *DetectionSession) Viewport() viewport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *DetectionSession) updateView(fn func(v viewport.State, layerW, layerH float64) viewport.State) viewport.State {
	s.mu.Lock()
	var layerW, layerH float64
	if s.stream == nil && s.active != nil {
		layerW, layerH = float64(s.active.DisplayWidth), float64(s.active.DisplayHeight)
	}
	before := s.view
	s.view = fn(s.view, layerW, layerH)
	after := s.view
	s.mu.Unlock()

	if after != before {
		s.emit(entity.Event{Kind: entity.EventViewportChanged, At: time.Now()})
	}
	return after
}

// SetFilter выбирает тип дефектов для показа
func (s *DetectionSession) SetFilter(selector string) {
	if s.filter.Select(selector) {
		s.emit(entity.Event{Kind: entity.EventFilterChanged, At: time.Now(), Message: s.filter.Selector()})
	}
}

// FilteredDefects дефекты текущего результата после фильтра
func (s *DetectionSession) FilteredDefects() []entity.Defect {
	s.mu.Lock()
	result := s.result
	s.mu.Unlock()
	return s.filter.Apply(result)
}

// PresentationMode способ отображения текущего изображения
func (s *DetectionSession) PresentationMode() viewport.PresentationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentationLocked()
}

func (s *DetectionSession) presentationLocked() viewport.PresentationMode {
	if s.stream != nil {
		return viewport.LiveCamera
	}
	return viewport.StaticImage
}

// Overlays строит рамки текущего результата в координатах экрана.
// Если изображение уже освобождено, рамок нет.
func (s *DetectionSession) Overlays() []viewport.Overlay {
	s.mu.Lock()
	asset, result, view := s.active, s.result, s.view
	mode := s.presentationLocked()
	s.mu.Unlock()

	if result == nil || !asset.Usable() {
		return []viewport.Overlay{}
	}
	iw, ih := float64(asset.DisplayWidth), float64(asset.DisplayHeight)
	var fit viewport.Fit
	if mode == viewport.LiveCamera {
		fit = viewport.ComputeFit(iw, ih, view.ContainerWidth, view.ContainerHeight)
	} else {
		fit = viewport.Identity(iw, ih)
	}
	return viewport.MapDefects(s.filter.Apply(result), fit, view, mode)
}

// Snapshot полное состояние сессии для отображения
type Snapshot struct {
	Session       entity.CaptureSession   `json:"session"`
	Camera        bool                    `json:"camera"`
	Presentation  string                  `json:"presentation"`
	Assets        []*entity.ImageAsset    `json:"assets"`
	Active        *entity.ImageAsset      `json:"active,omitempty"`
	Result        *entity.DetectionResult `json:"result,omitempty"`
	Defects       []entity.Defect         `json:"defects"`
	History       []entity.HistoryEntry   `json:"history"`
	Summary       entity.BatchSummary     `json:"summary"`
	Viewport      viewport.State          `json:"viewport"`
	Filter        string                  `json:"filter"`
	FilterOptions []string                `json:"filter_options"`
	Thresholds    entity.Thresholds       `json:"thresholds"`
	Elapsed       string                  `json:"elapsed"`
}

// Snapshot возвращает копию состояния сессии
func (s *DetectionSession) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Session:      s.session,
		Camera:       s.stream != nil,
		Presentation: s.presentationLocked().String(),
		Assets:       append([]*entity.ImageAsset(nil), s.assets...),
		Active:       s.active,
		Result:       s.result,
		History:      append([]entity.HistoryEntry(nil), s.history...),
		Viewport:     s.view,
		Thresholds:   s.thresholds,
		Elapsed:      entity.FormatElapsed(s.session.Elapsed(time.Now())),
	}
	s.mu.Unlock()

	snap.Summary = entity.Summarize(snap.History)
	snap.Defects = s.filter.Apply(snap.Result)
	snap.Filter = s.filter.Selector()
	snap.FilterOptions = s.filter.Options()
	return snap
}
