package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// OpenCamera включает камеру. При ошибке состояние сессии не меняется.
func (s *DetectionSession) OpenCamera(ctx context.Context) error {
	if s.camera == nil {
		err := &entity.CameraAcquisitionError{Reason: entity.CameraNotFound, Err: errors.New("no camera configured")}
		s.emit(entity.Notify(entity.LevelError, err.Error()))
		return err
	}

	s.mu.Lock()
	switch {
	case s.closed || s.session.Mode != entity.ModeIdle:
		s.mu.Unlock()
		return entity.ErrInvalidTransition
	case s.stream != nil:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	src, err := s.camera.Open(ctx, s.cfg.Resolution)
	if err != nil {
		ce := entity.ClassifyCameraError(err)
		s.log.WithError(err).WithField("reason", ce.Reason).Warn("camera acquisition failed")
		s.emit(entity.Notify(entity.LevelError, cameraMessage(ce)))
		return ce
	}

	stream := &cameraStream{src: src}
	s.mu.Lock()
	if s.closed || s.session.Mode != entity.ModeIdle || s.stream != nil {
		s.mu.Unlock()
		stream.Release()
		return entity.ErrInvalidTransition
	}
	events, owned := s.replaceLocked()
	s.stream = stream
	s.mu.Unlock()

	// камера заменяет загруженный пакет
	s.releaseOwned(owned...)
	s.lifecycle.ReleaseKindExcept(port.ResourceImage)
	s.lifecycle.Track(port.ResourceStream, stream)

	s.log.WithFields(logrus.Fields{"width": s.cfg.Resolution.Width, "height": s.cfg.Resolution.Height}).Info("camera on")
	events = append(events,
		entity.Event{Kind: entity.EventCameraOn, At: time.Now()},
		entity.Notify(entity.LevelSuccess, "camera started"),
	)
	s.emit(events...)
	return nil
}

// CloseCamera выключает камеру. Живой цикл останавливается, текущие рамки убираются.
func (s *DetectionSession) CloseCamera() error {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return entity.ErrCameraOff
	}
	var (
		events []entity.Event
		timer  port.Releaser
	)
	switch {
	case s.run != nil && s.session.Mode == entity.ModeLive:
		events, timer = s.endRunLocked(entity.EventRunStopped)
	case s.session.Mode == entity.ModeSingleShot:
		// снимок с камеры ещё ждёт ответа детектора, он будет отброшен
		s.session.Mode = entity.ModeIdle
		s.session.StoppedAt = time.Now()
	}
	stream := s.stream
	s.stream = nil
	s.gen++
	frame := s.active
	s.active = nil
	s.result = nil
	s.mu.Unlock()

	s.releaseOwned(timer, stream)
	if frame != nil {
		s.lifecycle.Release(frame.Handle)
	}

	s.log.Info("camera off")
	now := time.Now()
	events = append(events,
		entity.Event{Kind: entity.EventOverlayCleared, At: now},
		entity.Event{Kind: entity.EventCameraOff, At: now},
	)
	s.emit(events...)
	return nil
}

// CameraOn сообщает, включена ли камера
func (s *DetectionSession) CameraOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func cameraMessage(err *entity.CameraAcquisitionError) string {
	switch err.Reason {
	case entity.CameraPermissionDenied:
		return "camera access denied"
	case entity.CameraNotFound:
		return "no camera device found"
	case entity.CameraBusy:
		return "camera is in use by another application"
	default:
		return "could not start camera: " + err.Error()
	}
}

// DetectCurrent выполняет одиночную детекцию текущего изображения.
// При включённой камере сначала снимается кадр.
func (s *DetectionSession) DetectCurrent(ctx context.Context) (*entity.DetectionResult, error) {
	s.mu.Lock()
	if s.closed || s.session.Mode != entity.ModeIdle {
		s.mu.Unlock()
		return nil, entity.ErrInvalidTransition
	}
	stream := s.stream
	asset := s.active
	index := s.session.CurrentIndex
	s.mu.Unlock()

	if stream != nil {
		frame, err := s.frames.FromVideoFrame(stream.src)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			return nil, entity.ErrFrameNotReady
		}
		asset = frame
		index = 0
	}
	if asset == nil {
		return nil, entity.ErrNoAssets
	}
	if !asset.Usable() {
		return nil, entity.ErrAssetReleased
	}

	s.mu.Lock()
	if s.session.Mode != entity.ModeIdle || s.stream != stream {
		s.mu.Unlock()
		if stream != nil {
			s.lifecycle.Release(asset.Handle)
		}
		return nil, entity.ErrInvalidTransition
	}
	s.gen++
	gen := s.gen
	s.session = entity.CaptureSession{Mode: entity.ModeSingleShot, CurrentIndex: index, StartedAt: time.Now()}
	s.result = nil
	s.mu.Unlock()
	s.emit(entity.Event{Kind: entity.EventOverlayCleared, At: time.Now(), Mode: entity.ModeSingleShot, Index: index})

	result, err := s.detector.Detect(ctx, asset, s.params(asset))

	s.mu.Lock()
	if s.gen != gen {
		// сессия заменена, пока шёл запрос
		s.mu.Unlock()
		if stream != nil {
			s.lifecycle.Release(asset.Handle)
		}
		if err != nil {
			return nil, err
		}
		s.log.WithField("index", index).Debug("single detection superseded, result discarded")
		return nil, entity.ErrSuperseded
	}
	s.session.Mode = entity.ModeIdle
	s.session.StoppedAt = time.Now()
	if err != nil {
		s.mu.Unlock()
		if stream != nil {
			s.lifecycle.Release(asset.Handle)
		}
		s.log.WithError(err).Error("single detection failed")
		s.emit(s.notifyError(err))
		return nil, err
	}
	previous := s.active
	s.active = asset
	s.result = result
	s.filter.Observe(result)
	if stream == nil {
		s.recordLocked(entity.HistoryEntry{Index: index, Asset: asset, Result: result})
	}
	s.mu.Unlock()

	if stream != nil && previous != nil && previous != asset {
		s.lifecycle.Release(previous.Handle)
	}
	s.log.WithFields(logrus.Fields{"index": index, "defects": len(result.Defects)}).Info("single detection done")
	shown := s.emitIf(func() bool {
		return s.gen == gen && s.result == result
	}, entity.Event{Kind: entity.EventResultDisplayed, At: time.Now(), Mode: entity.ModeSingleShot, Index: index, Result: result})
	if !shown {
		return nil, entity.ErrSuperseded
	}
	return result, nil
}

// recordLocked кладёт результат в историю, заменяя запись с тем же индексом
func (s *DetectionSession) recordLocked(entry entity.HistoryEntry) {
	for i := range s.history {
		if s.history[i].Index == entry.Index {
			s.history[i] = entry
			return
		}
	}
	s.history = append(s.history, entry)
}
