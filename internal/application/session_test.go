package app

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
	"defect-console/internal/domain/viewport"
)

func TestDetectionSession_StartRequiresAssets(t *testing.T) {
	f := newFixture(t, fastConfig())

	require.ErrorIs(t, f.session.Start(), entity.ErrNoAssets)
	require.ErrorIs(t, f.session.LoadBatch(nil), entity.ErrEmptyBatch)
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Len(t, f.sink.Events(entity.EventNotification), 1)

	_, err := f.session.TogglePause()
	require.ErrorIs(t, err, entity.ErrInvalidTransition)
	require.ErrorIs(t, f.session.Stop(), entity.ErrInvalidTransition)
}

func TestDetectionSession_BatchPauseThenStop(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: 30 * time.Millisecond, PausePoll: 2 * time.Millisecond})
	require.NoError(t, f.session.LoadBatch(newAssets(3)))

	// пауза ставится, пока детектор обрабатывает первое изображение
	f.detector.respond = func(call int) (*entity.DetectionResult, error) {
		if call == 1 {
			_, err := f.session.TogglePause()
			assert.NoError(t, err)
		}
		return resultWith(entity.DefectShort, entity.DefectSpur), nil
	}
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool { return f.session.Session().Paused }, time.Second, time.Millisecond)
	// цикл успевает пройти задержку и упереться в паузу
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, f.session.Session().CurrentIndex)

	require.NoError(t, f.session.Stop())
	f.session.Wait()

	state := f.session.Session()
	require.Equal(t, entity.ModeIdle, state.Mode)
	require.Equal(t, 0, state.CurrentIndex)
	require.False(t, state.StoppedAt.IsZero())
	require.Equal(t, 1, f.detector.Calls())

	history := f.session.History()
	require.Len(t, history, 1)
	require.Equal(t, 0, history[0].Index)
	for _, e := range f.sink.Events(entity.EventResultDisplayed) {
		require.Equal(t, 0, e.Index)
	}
	require.Zero(t, f.life.Active(port.ResourceTimer))
	require.Nil(t, f.session.Snapshot().Result)
}

func TestDetectionSession_BatchCompletes(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: time.Millisecond, PausePoll: time.Millisecond})
	assets := newAssets(3)
	require.NoError(t, f.session.LoadBatch(assets))
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventRunCompleted)) == 1
	}, 2*time.Second, time.Millisecond)
	f.session.Wait()

	state := f.session.Session()
	require.Equal(t, entity.ModeIdle, state.Mode)
	require.Equal(t, 2, state.CurrentIndex)

	history := f.session.History()
	require.Len(t, history, 3)
	for i, h := range history {
		require.Equal(t, i, h.Index)
		require.Same(t, assets[i], h.Asset)
	}

	// время работы зафиксировано
	first := f.session.Elapsed()
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, first, f.session.Elapsed())
	require.Equal(t, state.StoppedAt.Sub(state.StartedAt), state.Elapsed(time.Now().Add(time.Hour)))

	require.Zero(t, f.life.Active(port.ResourceTimer))
	snap := f.session.Snapshot()
	require.Equal(t, 3, snap.Summary.Images)
	require.Equal(t, 6, snap.Summary.TotalDefects)
	require.Equal(t, []string{"all", "short", "spur"}, snap.FilterOptions)
}

func TestDetectionSession_BatchDetectionErrorAborts(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: time.Millisecond, PausePoll: time.Millisecond})
	f.detector.respond = func(call int) (*entity.DetectionResult, error) {
		if call == 2 {
			return nil, &entity.DetectionError{Message: "server returned 500", StatusCode: 500}
		}
		return resultWith(entity.DefectShort), nil
	}
	require.NoError(t, f.session.LoadBatch(newAssets(3)))
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventRunStopped)) == 1
	}, 2*time.Second, time.Millisecond)
	f.session.Wait()

	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Len(t, f.session.History(), 1)
	require.Equal(t, 2, f.detector.Calls())

	notes := f.sink.Events(entity.EventNotification)
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	require.Equal(t, entity.LevelError, last.Level)
	require.Contains(t, last.Message, "server returned 500")
	require.Zero(t, f.life.Active(port.ResourceTimer))
}

func TestDetectionSession_ThresholdsReadPerCall(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: time.Millisecond, PausePoll: time.Millisecond})
	require.NoError(t, f.session.LoadBatch(newAssets(2)))

	f.sink.SetHook(func(e entity.Event) {
		if e.Kind == entity.EventResultDisplayed && e.Index == 0 {
			assert.NoError(t, f.session.SetThresholds(entity.Thresholds{IoU: 0.7, Confidence: 0.2, Model: entity.ModelVote4}))
		}
	})
	require.NoError(t, f.session.Start())
	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventRunCompleted)) == 1
	}, 2*time.Second, time.Millisecond)

	params := f.detector.Params()
	require.Len(t, params, 2)
	require.Equal(t, entity.DefaultIoUThreshold, params[0].IoUThreshold)
	require.Equal(t, 1, params[0].OrientationCount)
	require.Equal(t, 0.7, params[1].IoUThreshold)
	require.Equal(t, 0.2, params[1].ConfidenceThreshold)
	require.Equal(t, 2, params[1].VoteThreshold)
	require.Equal(t, 4, params[1].OrientationCount)
	require.Equal(t, 600, params[1].ImageWidth)

	require.Error(t, f.session.SetThresholds(entity.Thresholds{IoU: 0.05, Confidence: 0.5}))
}

func TestDetectionSession_SingleStartAtATime(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: time.Second, PausePoll: time.Millisecond})
	require.NoError(t, f.session.LoadBatch(newAssets(2)))
	require.NoError(t, f.session.Start())
	require.ErrorIs(t, f.session.Start(), entity.ErrInvalidTransition)
	require.Equal(t, 1, f.life.Active(port.ResourceTimer))
	require.ErrorIs(t, f.session.SelectAsset(1), entity.ErrInvalidTransition)

	require.NoError(t, f.session.Stop())
	require.Zero(t, f.life.Active(port.ResourceTimer))
	f.session.Wait()
}

func TestDetectionSession_LoadBatchReleasesPrevious(t *testing.T) {
	f := newFixture(t, fastConfig())
	old := newAssets(2)
	for _, a := range old {
		f.life.Track(port.ResourceImage, a.Handle)
	}
	require.NoError(t, f.session.LoadBatch(old))
	f.session.ZoomStep(+1)
	f.session.SetFilter("short")

	fresh := newAssets(1)
	f.life.Track(port.ResourceImage, fresh[0].Handle)
	require.NoError(t, f.session.LoadBatch(fresh))

	for _, a := range old {
		require.True(t, a.Handle.Released())
	}
	require.False(t, fresh[0].Handle.Released())
	require.Equal(t, 1, f.life.Active(port.ResourceImage))

	snap := f.session.Snapshot()
	require.Equal(t, 1.0, snap.Viewport.Zoom)
	require.Equal(t, FilterAll, snap.Filter)
	require.Empty(t, snap.History)
	require.Equal(t, entity.ModeIdle, snap.Session.Mode)
}

func TestDetectionSession_DetectCurrentAndSelect(t *testing.T) {
	f := newFixture(t, fastConfig())
	assets := newAssets(2)
	require.NoError(t, f.session.LoadBatch(assets))

	res, err := f.session.DetectCurrent(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Defects, 2)
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Len(t, f.session.History(), 1)

	require.NoError(t, f.session.SelectAsset(1))
	require.Nil(t, f.session.Snapshot().Result)
	require.Empty(t, f.session.Overlays())

	require.NoError(t, f.session.SelectAsset(0))
	require.Same(t, res, f.session.Snapshot().Result)
	require.Len(t, f.session.Overlays(), 2)

	require.ErrorIs(t, f.session.SelectAsset(5), entity.ErrIndexOutOfRange)
}

func TestDetectionSession_DetectCurrentError(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.detector.respond = func(int) (*entity.DetectionResult, error) {
		return nil, &entity.DetectionError{Message: "timeout"}
	}
	require.NoError(t, f.session.LoadSingle(newAsset("x", 300, 200)))

	_, err := f.session.DetectCurrent(context.Background())
	var de *entity.DetectionError
	require.True(t, errors.As(err, &de))
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Empty(t, f.session.History())
}

func TestDetectionSession_OverlaysFollowViewport(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.detector.respond = func(int) (*entity.DetectionResult, error) {
		res := entity.EmptyResult()
		res.Defects = []entity.Defect{
			{Type: entity.DefectShort, BBox: &entity.BoundingBox{X1: 300, Y1: 200, X2: 400, Y2: 250}},
			{Type: entity.DefectSpur, BBox: &entity.BoundingBox{X1: 50, Y1: 0, X2: 10, Y2: 10}},
			{Type: entity.DefectMouseBite, Position: &entity.PointEstimate{X: 100, Y: 100}},
		}
		return res, nil
	}
	asset := newAsset("board", 600, 400)
	require.NoError(t, f.session.LoadSingle(asset))
	f.session.ResizeContainer(800, 600)
	_, err := f.session.DetectCurrent(context.Background())
	require.NoError(t, err)

	overlays := f.session.Overlays()
	require.Len(t, overlays, 2)
	require.Equal(t, viewport.ScreenBox{X1: 300, Y1: 200, X2: 400, Y2: 250}, overlays[0].Box)
	require.True(t, overlays[1].Marker)

	f.session.ZoomStep(+1)
	f.session.ZoomStep(+1)
	f.session.PanTo(viewport.Point{X: 10, Y: -20})
	overlays = f.session.Overlays()
	require.InDelta(t, 300+10, overlays[0].Box.X1, 1e-9)
	require.InDelta(t, 200-20, overlays[0].Box.Y1, 1e-9)
	require.InDelta(t, 300+1.2*100+10, overlays[0].Box.X2, 1e-9)

	f.session.SetFilter("MOUSE_BITE")
	overlays = f.session.Overlays()
	require.Len(t, overlays, 1)
	require.Equal(t, entity.DefectMouseBite, overlays[0].Type)
	require.Len(t, f.sink.Events(entity.EventFilterChanged), 1)

	f.session.ResetViewport()
	require.Equal(t, viewport.State{Zoom: 1, ContainerWidth: 800, ContainerHeight: 600}, f.session.Viewport())

	// освобождённое изображение рамок не даёт
	asset.Handle.Release()
	require.Empty(t, f.session.Overlays())
}

func TestDetectionSession_WheelZoomKeepsPointer(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.session.LoadSingle(newAsset("board", 600, 400)))
	f.session.ResizeContainer(900, 700)

	pointer := viewport.Point{X: 450, Y: 100}
	state := f.session.Zoom(pointer, -100)
	require.Equal(t, 1.5, state.Zoom)
	require.Equal(t, 900.0, state.ContainerWidth)

	// центр слоя совпадает с центром изображения 600x400
	p, ok := viewport.MapPoint(pointer.X, pointer.Y, viewport.Identity(600, 400), state, viewport.StaticImage)
	require.True(t, ok)
	require.InDelta(t, pointer.X, p.X, 1e-9)
	require.InDelta(t, pointer.Y, p.Y, 1e-9)
}

func TestDetectionSession_CameraOpenFailureKeepsState(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.session.LoadBatch(newAssets(1)))
	f.camera.err = errors.New("NotAllowedError: Permission denied")

	err := f.session.OpenCamera(context.Background())
	var ce *entity.CameraAcquisitionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, entity.CameraPermissionDenied, ce.Reason)
	require.False(t, f.session.CameraOn())
	require.Len(t, f.session.Snapshot().Assets, 1)
}

func TestDetectionSession_LiveCameraOffMidFlight(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.detector.block = make(chan struct{})

	require.NoError(t, f.session.OpenCamera(context.Background()))
	require.Equal(t, viewport.LiveCamera, f.session.PresentationMode())
	require.Equal(t, 1, f.life.Active(port.ResourceStream))
	require.NoError(t, f.session.Start())
	require.Equal(t, entity.ModeLive, f.session.Session().Mode)

	waitSignal(t, f.detector.started)
	require.NoError(t, f.session.CloseCamera())

	// таймер цикла снят ещё до ответа детектора
	require.Zero(t, f.life.Active(port.ResourceTimer))
	require.Zero(t, f.life.Active(port.ResourceStream))
	require.True(t, f.source.Stopped())

	close(f.detector.block)
	f.session.Wait()

	require.Empty(t, f.sink.Events(entity.EventResultDisplayed))
	require.Nil(t, f.session.Snapshot().Result)
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	for _, frame := range f.frames.Made() {
		require.True(t, frame.Handle.Released())
	}
}

func TestDetectionSession_LiveReplacesFrames(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.session.OpenCamera(context.Background()))
	f.session.ResizeContainer(800, 600)
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventResultDisplayed)) >= 3
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, f.session.Stop())
	f.session.Wait()

	// отображается только последний кадр, предыдущие освобождены
	require.LessOrEqual(t, f.life.Active(port.ResourceImage), 1)
	require.True(t, f.session.CameraOn())
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Empty(t, f.session.History())
}

func TestDetectionSession_LiveDetectionErrorKeepsCamera(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.detector.respond = func(int) (*entity.DetectionResult, error) {
		return nil, &entity.DetectionError{Message: "connection refused"}
	}
	require.NoError(t, f.session.OpenCamera(context.Background()))
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventRunStopped)) == 1
	}, 2*time.Second, time.Millisecond)
	f.session.Wait()

	require.True(t, f.session.CameraOn())
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	require.Zero(t, f.life.Active(port.ResourceTimer))
	require.Equal(t, 1, f.life.Active(port.ResourceStream))
}

func TestDetectionSession_LiveResumeFailureEndsLoop(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.source.paused = true
	f.source.resumeErr = errors.New("playback ended")
	require.NoError(t, f.session.OpenCamera(context.Background()))
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool {
		return len(f.sink.Events(entity.EventRunStopped)) == 1
	}, 2*time.Second, time.Millisecond)
	f.session.Wait()

	require.Zero(t, f.detector.Calls())
	require.True(t, f.session.CameraOn())
}

func TestDetectionSession_LiveSkipsUnreadyFrames(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.source.ready = false
	require.NoError(t, f.session.OpenCamera(context.Background()))
	require.NoError(t, f.session.Start())

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, f.detector.Calls())
	require.Equal(t, entity.ModeLive, f.session.Session().Mode)

	_, err := f.session.DetectCurrent(context.Background())
	require.ErrorIs(t, err, entity.ErrInvalidTransition)

	require.NoError(t, f.session.Stop())
	f.session.Wait()
	_, err = f.session.DetectCurrent(context.Background())
	require.ErrorIs(t, err, entity.ErrFrameNotReady)
}

func TestDetectionSession_CloseReleasesEverything(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.session.OpenCamera(context.Background()))
	require.NoError(t, f.session.Start())

	f.session.Close()
	f.session.Close()
	f.session.Wait()

	require.True(t, f.source.Stopped())
	require.Zero(t, f.life.Active(port.ResourceTimer))
	require.Zero(t, f.life.Active(port.ResourceStream))
	require.ErrorIs(t, f.session.Start(), entity.ErrInvalidTransition)
}

func TestDetectionSession_RestartRaceKeepsLoop(t *testing.T) {
	f := newFixture(t, SessionConfig{ItemDelay: time.Millisecond, PausePoll: time.Millisecond})
	require.NoError(t, f.session.LoadBatch(newAssets(2)))

	for i := 0; i < 300; i++ {
		require.NoError(t, f.session.Start())

		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			_ = f.session.Stop()
		}()

		deadline := time.Now().Add(2 * time.Second)
		for f.session.Start() != nil {
			require.True(t, time.Now().Before(deadline), "session never returned to idle")
			runtime.Gosched()
		}
		<-stopped
		f.session.Wait()

		state := f.session.Session()
		require.Equal(t, entity.ModeIdle, state.Mode, "iteration %d", i)
		require.Zero(t, f.life.Active(port.ResourceTimer), "iteration %d", i)
	}
}

func TestDetectionSession_CameraOffDuringSingleShot(t *testing.T) {
	f := newFixture(t, fastConfig())
	ctx := context.Background()
	require.NoError(t, f.session.OpenCamera(ctx))

	block := make(chan struct{})
	f.detector.block = block
	done := make(chan error, 1)
	go func() {
		_, err := f.session.DetectCurrent(ctx)
		done <- err
	}()
	waitSignal(t, f.detector.started)

	require.NoError(t, f.session.CloseCamera())
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
	close(block)

	select {
	case err := <-done:
		require.ErrorIs(t, err, entity.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("single detection did not return")
	}
	require.Empty(t, f.sink.Events(entity.EventResultDisplayed))
	require.Nil(t, f.session.Snapshot().Result)
	require.True(t, f.frames.Made()[0].Handle.Released())

	// сессия снова принимает команды
	f.source.Restart()
	require.NoError(t, f.session.OpenCamera(ctx))
	result, err := f.session.DetectCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, result.Defects, 2)
	require.Equal(t, entity.ModeIdle, f.session.Session().Mode)
}

func TestDetectionSession_NoResultAfterCameraOff(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		f := newFixture(t, SessionConfig{LivePeriod: time.Millisecond, PausePoll: time.Millisecond})
		require.NoError(t, f.session.OpenCamera(ctx))
		require.NoError(t, f.session.Start())
		waitSignal(t, f.detector.started)

		require.NoError(t, f.session.CloseCamera())
		f.session.Wait()

		events := f.sink.All()
		last := -1
		for j, e := range events {
			if e.Kind == entity.EventCameraOff {
				last = j
			}
		}
		require.NotEqual(t, -1, last)
		for _, e := range events[last:] {
			require.NotEqual(t, entity.EventResultDisplayed, e.Kind, "iteration %d", i)
		}
		require.Nil(t, f.session.Snapshot().Result)
	}
}
