package entity

import (
	"image"
	"sync"
)

// MaxDisplaySide максимальная длина большей стороны отображаемого изображения
const MaxDisplaySide = 600

// SourceFile файл, переданный оператором
type SourceFile struct {
	Name string
	MIME string // может быть пустым, тогда тип определяется по содержимому
	Data []byte
}

// ImageHandle отображаемое изображение, которое нужно явно освободить
type ImageHandle struct {
	mu       sync.RWMutex
	raster   image.Image
	payload  []byte
	mime     string
	released bool
}

// NewImageHandle создаёт дескриптор из растра и закодированных байт
func NewImageHandle(raster image.Image, payload []byte, mime string) *ImageHandle {
	return &ImageHandle{raster: raster, payload: payload, mime: mime}
}

// Raster возвращает растр, false если дескриптор освобождён
func (h *ImageHandle) Raster() (image.Image, bool) {
	if h == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, false
	}
	return h.raster, true
}

// Payload возвращает закодированное изображение для отправки детектору
func (h *ImageHandle) Payload() ([]byte, string, bool) {
	if h == nil {
		return nil, "", false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, "", false
	}
	return h.payload, h.mime, true
}

// Released сообщает, освобождён ли дескриптор
func (h *ImageHandle) Released() bool {
	if h == nil {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}

// Release освобождает растр и байты. Повторный вызов ничего не делает.
func (h *ImageHandle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.released = true
	h.raster = nil
	h.payload = nil
	h.mu.Unlock()
}

// ImageAsset нормализованное изображение, готовое к детекции
type ImageAsset struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Handle         *ImageHandle `json:"-"`
	DisplayWidth   int          `json:"display_width"`
	DisplayHeight  int          `json:"display_height"`
	OriginalWidth  int          `json:"original_width"`
	OriginalHeight int          `json:"original_height"`
}

// Usable сообщает, что изображение можно отрисовать или отправить
func (a *ImageAsset) Usable() bool {
	return a != nil && !a.Handle.Released() && a.DisplayWidth > 0 && a.DisplayHeight > 0
}

// ImportReport итог загрузки набора файлов
type ImportReport struct {
	Assets   []*ImageAsset
	Rejected []*DecodeError
}
