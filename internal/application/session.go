package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
	"defect-console/internal/domain/viewport"
)

// SessionConfig задержки циклов и параметры камеры
type SessionConfig struct {
	ItemDelay  time.Duration   // пауза между изображениями пакета
	LivePeriod time.Duration   // период захвата кадров с камеры
	PausePoll  time.Duration   // как часто пакетный цикл проверяет флаг паузы
	Resolution port.Resolution // желаемое разрешение камеры
	Thresholds entity.Thresholds
}

// DefaultSessionConfig значения по умолчанию
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ItemDelay:  time.Second,
		LivePeriod: 2 * time.Second,
		PausePoll:  100 * time.Millisecond,
		Resolution: port.Resolution{Width: 1280, Height: 720},
		Thresholds: entity.DefaultThresholds(),
	}
}

// SessionDeps внешние зависимости сессии
type SessionDeps struct {
	Detector  port.Detector
	Camera    port.Camera // может быть nil, тогда камера недоступна
	Frames    port.FrameCapturer
	Sink      port.EventSink
	Lifecycle *Lifecycle
	Log       *logrus.Entry
}

// run один запуск пакетного или живого цикла
type run struct {
	gen    uint64
	mode   entity.CaptureMode
	ctx    context.Context
	cancel context.CancelFunc
	timer  *loopTimer
}

// loopTimer таймер цикла в реестре ресурсов
type loopTimer struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (t *loopTimer) Release() {
	t.once.Do(t.cancel)
}

// cameraStream поток камеры в реестре ресурсов
type cameraStream struct {
	once sync.Once
	src  port.VideoSource
}

func (c *cameraStream) Release() {
	c.once.Do(c.src.Stop)
}

// DetectionSession конечный автомат одиночной, пакетной и живой детекции
type DetectionSession struct {
	detector  port.Detector
	camera    port.Camera
	frames    port.FrameCapturer
	sink      port.EventSink
	lifecycle *Lifecycle
	log       *logrus.Entry
	cfg       SessionConfig

	filter *ResultFilter

	base   context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	emitMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	session    entity.CaptureSession
	run        *run
	assets     []*entity.ImageAsset
	history    []entity.HistoryEntry
	active     *entity.ImageAsset
	result     *entity.DetectionResult
	stream     *cameraStream
	view       viewport.State
	thresholds entity.Thresholds
	closed     bool
}

// NewDetectionSession создаёт сессию в состоянии Idle без изображений
func NewDetectionSession(deps SessionDeps, cfg SessionConfig) *DetectionSession {
	def := DefaultSessionConfig()
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = 0
	}
	if cfg.LivePeriod <= 0 {
		cfg.LivePeriod = def.LivePeriod
	}
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = def.PausePoll
	}
	if cfg.Resolution.Width <= 0 || cfg.Resolution.Height <= 0 {
		cfg.Resolution = def.Resolution
	}
	if cfg.Thresholds.Validate() != nil {
		cfg.Thresholds = def.Thresholds
	}

	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	lc := deps.Lifecycle
	if lc == nil {
		lc = NewLifecycle(log)
	}
	sink := deps.Sink
	if sink == nil {
		sink = discardSink{}
	}

	base, cancel := context.WithCancel(context.Background())
	return &DetectionSession{
		detector:   deps.Detector,
		camera:     deps.Camera,
		frames:     deps.Frames,
		sink:       sink,
		lifecycle:  lc,
		log:        log.WithField("component", "session"),
		cfg:        cfg,
		filter:     NewResultFilter(),
		base:       base,
		cancel:     cancel,
		session:    entity.CaptureSession{Mode: entity.ModeIdle},
		view:       viewport.NewState(0, 0),
		thresholds: cfg.Thresholds,
	}
}

type discardSink struct{}

func (discardSink) Publish(entity.Event) {}

// Lifecycle возвращает реестр ресурсов сессии
func (s *DetectionSession) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// LoadBatch заменяет текущий пакет: останавливает запуск и камеру,
// сбрасывает историю, масштаб и фильтр. Пустой пакет состояние не меняет.
func (s *DetectionSession) LoadBatch(assets []*entity.ImageAsset) error {
	usable := make([]*entity.ImageAsset, 0, len(assets))
	for _, a := range assets {
		if a.Usable() {
			usable = append(usable, a)
		}
	}
	if len(usable) == 0 {
		s.emit(entity.Notify(entity.LevelWarning, "no usable images to load"))
		return entity.ErrEmptyBatch
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.ErrInvalidTransition
	}
	events, owned := s.replaceLocked()
	s.assets = usable
	s.active = usable[0]
	s.mu.Unlock()

	s.releaseOwned(owned...)
	keep := make([]port.Releaser, 0, len(usable))
	for _, a := range usable {
		keep = append(keep, a.Handle)
	}
	released := s.lifecycle.ReleaseKindExcept(port.ResourceImage, keep...)
	s.log.WithFields(logrus.Fields{"assets": len(usable), "released": released}).Info("batch loaded")

	now := time.Now()
	events = append(events,
		entity.Event{Kind: entity.EventAssetsLoaded, At: now, Mode: entity.ModeIdle, Index: len(usable)},
		entity.Event{Kind: entity.EventAssetSelected, At: now, Mode: entity.ModeIdle, Index: 0},
	)
	s.emit(events...)
	return nil
}

// LoadSingle загружает одно изображение для ручной проверки
func (s *DetectionSession) LoadSingle(asset *entity.ImageAsset) error {
	return s.LoadBatch([]*entity.ImageAsset{asset})
}

// replaceLocked сбрасывает запуск, камеру, историю и представление.
// Возвращает таймер прежнего запуска и поток камеры, их нужно освободить после разблокировки.
func (s *DetectionSession) replaceLocked() ([]entity.Event, []port.Releaser) {
	var (
		events []entity.Event
		owned  []port.Releaser
	)
	now := time.Now()
	if s.run != nil {
		owned = append(owned, s.run.timer)
		s.run = nil
		events = append(events, entity.Event{Kind: entity.EventRunStopped, At: now, Mode: s.session.Mode})
	}
	if s.stream != nil {
		owned = append(owned, s.stream)
		s.stream = nil
		events = append(events, entity.Event{Kind: entity.EventCameraOff, At: now})
	}
	s.gen++
	s.session = entity.CaptureSession{Mode: entity.ModeIdle}
	s.assets = nil
	s.history = nil
	s.active = nil
	s.result = nil
	s.view = s.view.Reset()
	s.filter.Reset()
	return events, owned
}

// Start запускает пакетный цикл по загруженным изображениям или живой цикл, если включена камера
func (s *DetectionSession) Start() error {
	s.mu.Lock()
	if s.closed || s.session.Mode != entity.ModeIdle {
		s.mu.Unlock()
		return entity.ErrInvalidTransition
	}

	var (
		mode   entity.CaptureMode
		assets []*entity.ImageAsset
		stream *cameraStream
	)
	switch {
	case s.stream != nil:
		mode = entity.ModeLive
		stream = s.stream
	case len(s.assets) > 0:
		mode = entity.ModeBatch
		assets = append([]*entity.ImageAsset(nil), s.assets...)
		s.history = nil
		s.result = nil
		s.active = assets[0]
		s.view = s.view.Reset()
	default:
		s.mu.Unlock()
		return entity.ErrNoAssets
	}

	s.gen++
	ctx, cancel := context.WithCancel(s.base)
	r := &run{gen: s.gen, mode: mode, ctx: ctx, cancel: cancel, timer: &loopTimer{cancel: cancel}}
	s.run = r
	s.session = entity.CaptureSession{Mode: mode, StartedAt: time.Now()}
	s.mu.Unlock()

	// таймер прежнего запуска освобождён тем, кто этот запуск завершил
	s.lifecycle.Track(port.ResourceTimer, r.timer)

	s.loops.Add(1)
	if mode == entity.ModeBatch {
		go s.runBatch(r, assets)
	} else {
		go s.runLive(r, stream.src)
	}

	s.log.WithFields(logrus.Fields{"mode": mode, "assets": len(assets)}).Info("run started")
	s.emit(entity.Event{Kind: entity.EventRunStarted, At: time.Now(), Mode: mode})
	return nil
}

// TogglePause приостанавливает или возобновляет запуск. Цикл увидит флаг на границе итерации.
func (s *DetectionSession) TogglePause() (bool, error) {
	s.mu.Lock()
	if s.run == nil || !s.session.Running() {
		s.mu.Unlock()
		return false, entity.ErrInvalidTransition
	}
	s.session.Paused = !s.session.Paused
	paused, mode, index := s.session.Paused, s.session.Mode, s.session.CurrentIndex
	s.mu.Unlock()

	kind := entity.EventRunResumed
	if paused {
		kind = entity.EventRunPaused
	}
	s.log.WithFields(logrus.Fields{"mode": mode, "paused": paused}).Info("pause toggled")
	s.emit(entity.Event{Kind: kind, At: time.Now(), Mode: mode, Index: index})
	return paused, nil
}

// Stop останавливает запуск, убирает текущие рамки и фиксирует время работы.
// Запрос к детектору, если он идёт, не прерывается, его результат будет отброшен.
func (s *DetectionSession) Stop() error {
	s.mu.Lock()
	if s.run == nil || !s.session.Running() {
		s.mu.Unlock()
		return entity.ErrInvalidTransition
	}
	events, timer := s.endRunLocked(entity.EventRunStopped)
	s.result = nil
	s.mu.Unlock()

	s.releaseOwned(timer)
	events = append(events, entity.Event{Kind: entity.EventOverlayCleared, At: time.Now()})
	s.emit(events...)
	return nil
}

// endRunLocked переводит сессию в Idle и возвращает событие окончания и таймер завершённого запуска
func (s *DetectionSession) endRunLocked(kind entity.EventKind) ([]entity.Event, port.Releaser) {
	now := time.Now()
	mode := s.session.Mode
	var timer port.Releaser
	if s.run != nil && s.run.timer != nil {
		timer = s.run.timer
	}
	s.run = nil
	s.gen++
	s.session.Mode = entity.ModeIdle
	s.session.Paused = false
	s.session.StoppedAt = now
	elapsed := s.session.Elapsed(now)

	s.log.WithFields(logrus.Fields{"mode": mode, "elapsed": elapsed.Round(time.Millisecond)}).Info("run ended")
	return []entity.Event{{
		Kind:    kind,
		At:      now,
		Mode:    mode,
		Index:   s.session.CurrentIndex,
		Elapsed: entity.FormatElapsed(elapsed),
	}}, timer
}

// SetThresholds меняет пороги. Новое значение действует со следующего вызова детектора.
func (s *DetectionSession) SetThresholds(t entity.Thresholds) error {
	if t.Model == "" {
		t.Model = entity.ModelPrimary
	}
	if err := t.Validate(); err != nil {
		return err
	}
	model, _ := entity.ParseModelPreset(string(t.Model))
	t.Model = model

	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	return nil
}

// Thresholds возвращает текущие пороги
func (s *DetectionSession) Thresholds() entity.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// params читает пороги в момент вызова детектора
func (s *DetectionSession) params(asset *entity.ImageAsset) entity.DetectionParams {
	s.mu.Lock()
	t := s.thresholds
	s.mu.Unlock()
	return t.Params(asset)
}

// Elapsed время работы текущего или последнего запуска
func (s *DetectionSession) Elapsed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.FormatElapsed(s.session.Elapsed(time.Now()))
}

// Session возвращает копию состояния запуска
func (s *DetectionSession) Session() entity.CaptureSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// History возвращает копию истории пакета
func (s *DetectionSession) History() []entity.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.HistoryEntry(nil), s.history...)
}

// Asset возвращает загруженное изображение по индексу
func (s *DetectionSession) Asset(index int) (*entity.ImageAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.assets) {
		return nil, entity.ErrIndexOutOfRange
	}
	return s.assets[index], nil
}

// Wait ждёт завершения горутин циклов
func (s *DetectionSession) Wait() {
	s.loops.Wait()
}

// Close останавливает запуск, выключает камеру и освобождает все ресурсы
func (s *DetectionSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var events []entity.Event
	if s.run != nil {
		events, _ = s.endRunLocked(entity.EventRunStopped)
	}
	if s.stream != nil {
		s.stream = nil
		events = append(events, entity.Event{Kind: entity.EventCameraOff, At: time.Now()})
	}
	s.gen++
	s.active = nil
	s.result = nil
	s.mu.Unlock()

	s.cancel()
	released := s.lifecycle.ReleaseAll()
	s.log.WithField("released", released).Info("session closed")
	s.emit(events...)
}

// emit публикует события вне блокировки состояния. Публикации идут строго по очереди.
func (s *DetectionSession) emit(events ...entity.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, e := range events {
		s.sink.Publish(e)
	}
}

// emitIf публикует события, только если current под блокировкой состояния ещё истинно.
// Остановка, успевшая сменить состояние раньше, отбрасывает их, а её собственные события
// выйдут не раньше этих.
func (s *DetectionSession) emitIf(current func() bool, events ...entity.Event) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	ok := current()
	s.mu.Unlock()
	if !ok {
		return false
	}
	for _, e := range events {
		s.sink.Publish(e)
	}
	return true
}

// releaseOwned снимает ресурсы с учёта и освобождает их, даже если они ещё не зарегистрированы
func (s *DetectionSession) releaseOwned(rs ...port.Releaser) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		s.lifecycle.Release(r)
		r.Release()
	}
}

// notifyError превращает ошибку в уведомление оператору
func (s *DetectionSession) notifyError(err error) entity.Event {
	return entity.Notify(entity.LevelError, err.Error())
}
