package port

import (
	"context"
	"image"
)

// Resolution желаемое разрешение потока
type Resolution struct {
	Width  int
	Height int
}

// Camera устройство захвата видео
type Camera interface {
	// Open открывает поток. Ошибки классифицируются как *entity.CameraAcquisitionError.
	Open(ctx context.Context, preferred Resolution) (VideoSource, error)
}

// VideoSource активный видеопоток
type VideoSource interface {
	// Ready сообщает, что текущий кадр можно захватить
	Ready() bool
	// Paused сообщает, что воспроизведение приостановлено или закончилось
	Paused() bool
	// Resume пытается возобновить воспроизведение
	Resume() error
	// Frame возвращает текущий кадр в исходном разрешении, nil если кадра нет
	Frame() (image.Image, error)
	// Stop останавливает все дорожки потока
	Stop()
}
