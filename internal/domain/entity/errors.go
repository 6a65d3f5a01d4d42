package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyBatch в наборе файлов не осталось ни одного изображения
	ErrEmptyBatch = errors.New("no image files in batch")
	// ErrInvalidTransition операция недопустима в текущем состоянии сессии
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoAssets нет загруженных изображений
	ErrNoAssets = errors.New("no assets loaded")
	// ErrAssetReleased изображение уже освобождено
	ErrAssetReleased = errors.New("asset handle released")
	// ErrIndexOutOfRange индекс изображения вне загруженного пакета
	ErrIndexOutOfRange = errors.New("asset index out of range")
	// ErrFrameNotReady камера ещё не отдала кадр
	ErrFrameNotReady = errors.New("camera frame not ready")
	// ErrCameraOff камера не включена
	ErrCameraOff = errors.New("camera is off")
	// ErrSuperseded сессию заменили или камеру выключили, пока шла детекция
	ErrSuperseded = errors.New("detection superseded by a newer session state")
)

// DecodeError файл не удалось декодировать как изображение
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CameraFailure причина отказа камеры
type CameraFailure string

const (
	CameraPermissionDenied CameraFailure = "permission_denied"
	CameraNotFound         CameraFailure = "not_found"
	CameraBusy             CameraFailure = "busy"
	CameraOther            CameraFailure = "other"
)

// CameraAcquisitionError камеру не удалось открыть
type CameraAcquisitionError struct {
	Reason CameraFailure
	Err    error
}

func (e *CameraAcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("camera acquisition failed: %s", e.Reason)
	}
	return fmt.Sprintf("camera acquisition failed: %s: %v", e.Reason, e.Err)
}

func (e *CameraAcquisitionError) Unwrap() error { return e.Err }

// ClassifyCameraError относит ошибку устройства к одной из причин по тексту
func ClassifyCameraError(err error) *CameraAcquisitionError {
	if err == nil {
		return nil
	}
	var ce *CameraAcquisitionError
	if errors.As(err, &ce) {
		return ce
	}
	msg := strings.ToLower(err.Error())
	reason := CameraOther
	switch {
	case containsAny(msg, "permission", "not allowed", "notallowed", "access denied", "operation not permitted"):
		reason = CameraPermissionDenied
	case containsAny(msg, "not found", "notfound", "no such device", "no such file", "can't open", "cannot open"):
		reason = CameraNotFound
	case containsAny(msg, "busy", "notreadable", "not readable", "in use", "trackstart"):
		reason = CameraBusy
	}
	return &CameraAcquisitionError{Reason: reason, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// DetectionError вызов детектора завершился ошибкой
type DetectionError struct {
	Message    string
	StatusCode int // 0 для сетевых ошибок
	Err        error
}

func (e *DetectionError) Error() string {
	return "detection failed: " + e.Message
}

func (e *DetectionError) Unwrap() error { return e.Err }
