//go:build gocv
// +build gocv

package camera

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// Open открывает устройство и запрашивает желаемое разрешение.
func (d *Device) Open(ctx context.Context, preferred port.Resolution) (port.VideoSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, &entity.CameraAcquisitionError{Reason: entity.CameraOther, Err: err}
	}
	capture, err := openCapture(d.source, preferred)
	if err != nil {
		return nil, entity.ClassifyCameraError(err)
	}
	d.log.WithField("device", d.source).Info("camera opened")
	return &stream{device: d, preferred: preferred, capture: capture, frame: gocv.NewMat()}, nil
}

func openCapture(source string, preferred port.Resolution) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "open video capture %s", source)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &entity.CameraAcquisitionError{Reason: entity.CameraNotFound, Err: errors.Errorf("device %s not found", source)}
	}
	if preferred.Width > 0 && preferred.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(preferred.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(preferred.Height))
	}
	return capture, nil
}

// stream поток камеры. Кадр читается синхронно при каждом вызове Frame.
type stream struct {
	device    *Device
	preferred port.Resolution

	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	ended   bool
	stopped bool
}

func (s *stream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && !s.ended && s.capture != nil && s.capture.IsOpened()
}

func (s *stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Resume переоткрывает устройство после обрыва чтения
func (s *stream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("camera stream stopped")
	}
	if !s.ended {
		return nil
	}
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	capture, err := openCapture(s.device.source, s.preferred)
	if err != nil {
		return err
	}
	s.capture = capture
	s.ended = false
	s.device.log.Info("camera playback resumed")
	return nil
}

func (s *stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.capture == nil {
		return nil, nil
	}
	if ok := s.capture.Read(&s.frame); !ok {
		s.ended = true
		return nil, nil
	}
	if s.frame.Empty() {
		return nil, nil
	}
	img, err := s.frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert frame")
	}
	return img, nil
}

// Stop закрывает устройство. Повторный вызов ничего не делает.
func (s *stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	s.frame.Close()
	s.device.log.Info("camera closed")
}
