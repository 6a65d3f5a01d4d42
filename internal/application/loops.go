package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// currentLocked сообщает, что запуск r всё ещё актуален
func (s *DetectionSession) currentLocked(r *run) bool {
	return s.run == r && r.gen == s.gen
}

// runBatch обрабатывает изображения пакета по одному
func (s *DetectionSession) runBatch(r *run, assets []*entity.ImageAsset) {
	defer s.loops.Done()
	defer s.lifecycle.Release(r.timer)
	defer s.abandonRun(r)

	log := s.log.WithFields(logrus.Fields{"mode": r.mode, "run": r.gen})
	for i := 0; i < len(assets); i++ {
		if !s.waitWhilePaused(r) {
			return
		}
		asset := assets[i]

		s.mu.Lock()
		if !s.currentLocked(r) {
			s.mu.Unlock()
			return
		}
		s.session.CurrentIndex = i
		s.active = asset
		s.result = nil
		s.view = s.view.Reset()
		s.mu.Unlock()
		now := time.Now()
		s.emit(
			entity.Event{Kind: entity.EventAssetSelected, At: now, Mode: r.mode, Index: i},
			entity.Event{Kind: entity.EventOverlayCleared, At: now, Mode: r.mode, Index: i},
		)

		if !asset.Usable() {
			log.WithField("index", i).Warn("asset released before detection, skipped")
			continue
		}

		// запрос не прерывается остановкой, устаревший ответ отбрасывается ниже
		result, err := s.detector.Detect(context.WithoutCancel(r.ctx), asset, s.params(asset))
		if err != nil {
			log.WithError(err).WithField("index", i).Error("batch detection failed")
			s.failRun(r, err)
			return
		}

		s.mu.Lock()
		if !s.currentLocked(r) || s.session.CurrentIndex != i {
			s.mu.Unlock()
			log.WithField("index", i).Debug("stale batch result discarded")
			return
		}
		s.history = append(s.history, entity.HistoryEntry{Index: i, Asset: asset, Result: result})
		s.result = result
		s.filter.Observe(result)
		s.mu.Unlock()

		log.WithFields(logrus.Fields{"index": i, "defects": len(result.Defects)}).Info("batch item detected")
		shown := s.emitIf(func() bool {
			return s.currentLocked(r) && s.session.CurrentIndex == i && s.result == result
		}, entity.Event{Kind: entity.EventResultDisplayed, At: time.Now(), Mode: r.mode, Index: i, Result: result})
		if !shown {
			log.WithField("index", i).Debug("batch result superseded before display")
			return
		}

		if !sleepCtx(r.ctx, s.cfg.ItemDelay) {
			return
		}
	}
	s.completeRun(r)
}

// waitWhilePaused ждёт снятия паузы. false означает, что запуск остановлен.
func (s *DetectionSession) waitWhilePaused(r *run) bool {
	for {
		s.mu.Lock()
		current, paused := s.currentLocked(r), s.session.Paused
		s.mu.Unlock()
		if !current {
			return false
		}
		if !paused {
			return true
		}
		if !sleepCtx(r.ctx, s.cfg.PausePoll) {
			return false
		}
	}
}

// completeRun завершает пакет и фиксирует время
func (s *DetectionSession) completeRun(r *run) {
	s.mu.Lock()
	if !s.currentLocked(r) {
		s.mu.Unlock()
		return
	}
	events, timer := s.endRunLocked(entity.EventRunCompleted)
	summary := entity.Summarize(s.history)
	s.mu.Unlock()

	s.releaseOwned(timer)
	events = append(events, entity.Notify(entity.LevelSuccess,
		fmt.Sprintf("batch finished: %d images, %d defects", summary.Images, summary.TotalDefects)))
	s.emit(events...)
}

// failRun завершает запуск после ошибки. Камера при этом остаётся включённой.
func (s *DetectionSession) failRun(r *run, err error) {
	s.mu.Lock()
	if !s.currentLocked(r) {
		s.mu.Unlock()
		return
	}
	events, timer := s.endRunLocked(entity.EventRunStopped)
	s.mu.Unlock()

	s.releaseOwned(timer)
	events = append(events, s.notifyError(err))
	s.emit(events...)
}

// runLive периодически снимает кадр с камеры и отправляет его детектору
func (s *DetectionSession) runLive(r *run, src port.VideoSource) {
	defer s.loops.Done()
	defer s.lifecycle.Release(r.timer)
	defer s.abandonRun(r)

	ticker := time.NewTicker(s.cfg.LivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.liveTick(r, src) {
			return
		}
	}
}

// liveTick одна итерация живого цикла. false завершает цикл.
func (s *DetectionSession) liveTick(r *run, src port.VideoSource) bool {
	log := s.log.WithFields(logrus.Fields{"mode": r.mode, "run": r.gen})

	s.mu.Lock()
	current := s.currentLocked(r)
	cameraOn := s.stream != nil && s.stream.src == src
	paused := s.session.Paused
	s.mu.Unlock()

	switch {
	case !current:
		return false
	case !cameraOn:
		// камера выключена: цикл заканчивается без ошибки
		s.finishLive(r)
		return false
	case paused:
		return true
	}

	if src.Paused() {
		if err := src.Resume(); err != nil {
			log.WithError(err).Warn("camera playback could not be resumed")
			s.failRun(r, errors.New("camera playback stopped: "+err.Error()))
			return false
		}
	}

	asset, err := s.frames.FromVideoFrame(src)
	if err != nil {
		log.WithError(err).Warn("frame capture failed, tick skipped")
		return true
	}
	if asset == nil {
		return true
	}

	result, err := s.detector.Detect(context.WithoutCancel(r.ctx), asset, s.params(asset))
	if err != nil {
		s.lifecycle.Release(asset.Handle)
		log.WithError(err).Error("live detection failed")
		s.failRun(r, err)
		return false
	}

	s.mu.Lock()
	if !s.currentLocked(r) || s.stream == nil || s.stream.src != src {
		s.mu.Unlock()
		s.lifecycle.Release(asset.Handle)
		log.Debug("live result discarded, camera inactive")
		return false
	}
	previous := s.active
	s.active = asset
	s.result = result
	s.filter.Observe(result)
	s.mu.Unlock()

	if previous != nil && previous != asset {
		s.lifecycle.Release(previous.Handle)
	}
	return s.emitIf(func() bool {
		return s.currentLocked(r) && s.stream != nil && s.stream.src == src && s.result == result
	}, entity.Event{Kind: entity.EventResultDisplayed, At: time.Now(), Mode: r.mode, Result: result})
}

// finishLive завершает живой цикл, когда камера уже выключена
func (s *DetectionSession) finishLive(r *run) {
	s.mu.Lock()
	if !s.currentLocked(r) {
		s.mu.Unlock()
		return
	}
	events, timer := s.endRunLocked(entity.EventRunStopped)
	s.mu.Unlock()

	s.releaseOwned(timer)
	s.emit(events...)
}

// abandonRun закрывает запуск, чей цикл вышел, а сессия всё ещё числит его активным.
// Так бывает, если таймер запуска отменили в обход Stop.
func (s *DetectionSession) abandonRun(r *run) {
	s.mu.Lock()
	if !s.currentLocked(r) {
		s.mu.Unlock()
		return
	}
	events, timer := s.endRunLocked(entity.EventRunStopped)
	s.result = nil
	s.mu.Unlock()

	s.releaseOwned(timer)
	s.log.WithFields(logrus.Fields{"mode": r.mode, "run": r.gen}).Warn("run loop exited unexpectedly")
	events = append(events,
		entity.Event{Kind: entity.EventOverlayCleared, At: time.Now()},
		entity.Notify(entity.LevelWarning, "detection run interrupted"),
	)
	s.emit(events...)
}

// sleepCtx ждёт d или отмены контекста. false означает отмену.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
