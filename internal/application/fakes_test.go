package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

func testLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func newAsset(id string, w, h int) *entity.ImageAsset {
	raster := image.NewRGBA(image.Rect(0, 0, w, h))
	return &entity.ImageAsset{
		ID:             id,
		Name:           id + ".png",
		Handle:         entity.NewImageHandle(raster, []byte("payload-"+id), "image/png"),
		DisplayWidth:   w,
		DisplayHeight:  h,
		OriginalWidth:  w,
		OriginalHeight: h,
	}
}

func newAssets(n int) []*entity.ImageAsset {
	out := make([]*entity.ImageAsset, n)
	for i := range out {
		out[i] = newAsset(string(rune('a'+i)), 600, 400)
	}
	return out
}

func confidence(v float64) *float64 { return &v }

func resultWith(types ...entity.DefectType) *entity.DetectionResult {
	res := entity.EmptyResult()
	for i, t := range types {
		x := float64(10 + 50*i)
		res.Defects = append(res.Defects, entity.Defect{
			Type:       t,
			Confidence: confidence(90),
			Severity:   entity.SeveritySevere,
			BBox:       &entity.BoundingBox{X1: x, Y1: 10, X2: x + 40, Y2: 50},
		})
		res.Statistics.DefectTypes[string(t)]++
	}
	res.Statistics.TotalDefects = len(types)
	return res
}

// fakeDetector считает вызовы и может блокироваться до close(block)
type fakeDetector struct {
	mu      sync.Mutex
	calls   int
	params  []entity.DetectionParams
	assets  []*entity.ImageAsset
	respond func(call int) (*entity.DetectionResult, error)
	block   chan struct{}
	started chan struct{}
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{started: make(chan struct{}, 16)}
}

func (d *fakeDetector) Detect(_ context.Context, asset *entity.ImageAsset, params entity.DetectionParams) (*entity.DetectionResult, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.params = append(d.params, params)
	d.assets = append(d.assets, asset)
	block, respond := d.block, d.respond
	d.mu.Unlock()

	select {
	case d.started <- struct{}{}:
	default:
	}
	if block != nil {
		<-block
	}
	if respond != nil {
		return respond(call)
	}
	return resultWith(entity.DefectShort, entity.DefectSpur), nil
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDetector) Params() []entity.DetectionParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]entity.DetectionParams(nil), d.params...)
}

// recordingSink запоминает события и вызывает hook вне своей блокировки.
// hook не должен вызывать методы сессии, которые публикуют события.
type recordingSink struct {
	mu     sync.Mutex
	events []entity.Event
	hook   func(entity.Event)
}

func (s *recordingSink) Publish(e entity.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (s *recordingSink) SetHook(fn func(entity.Event)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func (s *recordingSink) All() []entity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Event(nil), s.events...)
}

func (s *recordingSink) Events(kind entity.EventKind) []entity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakeSource видеопоток с управляемой готовностью
type fakeSource struct {
	mu        sync.Mutex
	ready     bool
	paused    bool
	resumeErr error
	stopped   bool
}

func (f *fakeSource) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready && !f.stopped
}

func (f *fakeSource) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSource) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.paused = false
	return nil
}

func (f *fakeSource) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1280, 720)), nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// Restart снова делает источник готовым, как после повторного открытия камеры
func (f *fakeSource) Restart() {
	f.mu.Lock()
	f.stopped = false
	f.mu.Unlock()
}

func (f *fakeSource) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeCamera struct {
	src *fakeSource
	err error
}

func (c *fakeCamera) Open(context.Context, port.Resolution) (port.VideoSource, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.src, nil
}

// fakeFrames выдаёт новый кадр 600x338 на каждый вызов и регистрирует его
type fakeFrames struct {
	mu      sync.Mutex
	tracker port.ResourceTracker
	made    []*entity.ImageAsset
}

func (f *fakeFrames) FromVideoFrame(src port.VideoSource) (*entity.ImageAsset, error) {
	if !src.Ready() {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	asset := newAsset("frame", 600, 338)
	asset.OriginalWidth, asset.OriginalHeight = 1280, 720
	if f.tracker != nil {
		f.tracker.Track(port.ResourceImage, asset.Handle)
	}
	f.made = append(f.made, asset)
	return asset, nil
}

func (f *fakeFrames) Made() []*entity.ImageAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*entity.ImageAsset(nil), f.made...)
}

type sessionFixture struct {
	session  *DetectionSession
	detector *fakeDetector
	sink     *recordingSink
	source   *fakeSource
	camera   *fakeCamera
	frames   *fakeFrames
	life     *Lifecycle
}

func newFixture(t *testing.T, cfg SessionConfig) *sessionFixture {
	t.Helper()
	log := testLogger()
	life := NewLifecycle(log)
	src := &fakeSource{ready: true}
	f := &sessionFixture{
		detector: newFakeDetector(),
		sink:     &recordingSink{},
		source:   src,
		camera:   &fakeCamera{src: src},
		frames:   &fakeFrames{tracker: life},
		life:     life,
	}
	if cfg.Thresholds == (entity.Thresholds{}) {
		cfg.Thresholds = entity.DefaultThresholds()
	}
	f.session = NewDetectionSession(SessionDeps{
		Detector:  f.detector,
		Camera:    f.camera,
		Frames:    f.frames,
		Sink:      f.sink,
		Lifecycle: life,
		Log:       log,
	}, cfg)
	t.Cleanup(f.session.Close)
	return f
}

func fastConfig() SessionConfig {
	return SessionConfig{
		ItemDelay:  10 * time.Millisecond,
		LivePeriod: 10 * time.Millisecond,
		PausePoll:  2 * time.Millisecond,
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detector call")
	}
}

var errBoom = errors.New("server returned 500")
