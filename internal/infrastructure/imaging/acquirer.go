// Package imaging декодирует файлы и кадры камеры в изображения с ограниченным размером.
package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// JPEGQuality качество изображения, отправляемого детектору
const JPEGQuality = 95

// Acquirer превращает файлы и кадры в entity.ImageAsset
type Acquirer struct {
	tracker port.ResourceTracker
	maxSide int
	log     *logrus.Entry

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewAcquirer создаёт загрузчик. maxSide <= 0 означает entity.MaxDisplaySide.
func NewAcquirer(tracker port.ResourceTracker, maxSide int, log *logrus.Entry) *Acquirer {
	if maxSide <= 0 {
		maxSide = entity.MaxDisplaySide
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Acquirer{tracker: tracker, maxSide: maxSide, log: log.WithField("component", "imaging")}
}

// DisplaySize уменьшает размер так, чтобы большая сторона не превышала maxSide.
// Пропорции сохраняются, меньшая сторона округляется. Увеличения не бывает.
func DisplaySize(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 || maxSide <= 0 {
		return 0, 0
	}
	if width <= maxSide && height <= maxSide {
		return width, height
	}
	if width >= height {
		h := int(math.Round(float64(height) / float64(width) * float64(maxSide)))
		return maxSide, max(h, 1)
	}
	w := int(math.Round(float64(width) / float64(height) * float64(maxSide)))
	return max(w, 1), maxSide
}

// FromFile декодирует файл и возвращает изображение отображаемого размера
func (a *Acquirer) FromFile(file entity.SourceFile) (*entity.ImageAsset, error) {
	img, err := decode(file.Data)
	if err != nil {
		return nil, &entity.DecodeError{Name: file.Name, Err: err}
	}
	return a.normalize(file.Name, img)
}

// FromFileList оставляет только изображения в исходном порядке.
// Файлы, которые не удалось декодировать, попадают в Rejected и не прерывают загрузку.
func (a *Acquirer) FromFileList(files []entity.SourceFile) (*entity.ImportReport, error) {
	report := &entity.ImportReport{}
	for _, f := range files {
		if !IsImage(f) {
			a.log.WithField("file", f.Name).Debug("not an image, skipped")
			continue
		}
		asset, err := a.FromFile(f)
		if err != nil {
			var de *entity.DecodeError
			if !errors.As(err, &de) {
				de = &entity.DecodeError{Name: f.Name, Err: err}
			}
			a.log.WithError(err).WithField("file", f.Name).Warn("image rejected")
			report.Rejected = append(report.Rejected, de)
			continue
		}
		report.Assets = append(report.Assets, asset)
	}
	if len(report.Assets) == 0 {
		return report, entity.ErrEmptyBatch
	}
	a.log.WithFields(logrus.Fields{"assets": len(report.Assets), "rejected": len(report.Rejected)}).Info("files imported")
	return report, nil
}

// FromVideoFrame снимает текущий кадр. Если поток не готов, возвращает nil без ошибки.
func (a *Acquirer) FromVideoFrame(src port.VideoSource) (*entity.ImageAsset, error) {
	if src == nil || !src.Ready() {
		return nil, nil
	}
	frame, err := src.Frame()
	if err != nil {
		return nil, errors.Wrap(err, "read camera frame")
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, nil
	}
	return a.normalize("frame-"+time.Now().Format("150405.000"), frame)
}

// normalize уменьшает растр, кодирует его и регистрирует дескриптор
func (a *Acquirer) normalize(name string, img image.Image) (*entity.ImageAsset, error) {
	b := img.Bounds()
	ow, oh := b.Dx(), b.Dy()
	dw, dh := DisplaySize(ow, oh, a.maxSide)
	if dw == 0 {
		return nil, &entity.DecodeError{Name: name, Err: errors.New("empty image")}
	}

	var raster image.Image
	if dw != ow || dh != oh {
		raster = resize.Resize(uint(dw), uint(dh), img, resize.Lanczos3)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		raster = dst
	}

	payload, err := a.encode(raster)
	if err != nil {
		return nil, err
	}

	asset := &entity.ImageAsset{
		ID:             uuid.NewString(),
		Name:           name,
		Handle:         entity.NewImageHandle(raster, payload, "image/jpeg"),
		DisplayWidth:   dw,
		DisplayHeight:  dh,
		OriginalWidth:  ow,
		OriginalHeight: oh,
	}
	if a.tracker != nil {
		a.tracker.Track(port.ResourceImage, asset.Handle)
	}
	return asset, nil
}

// encode кодирует растр в JPEG через общий буфер
func (a *Acquirer) encode(img image.Image) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	if err := jpeg.Encode(&a.buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, errors.Wrap(err, "encode display image")
	}
	return append([]byte(nil), a.buf.Bytes()...), nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	if isWebP(data) {
		img, err := webp.Decode(bytes.NewReader(data))
		return img, errors.Wrap(err, "webp")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// IsImage проверяет тип файла: заявленный MIME, затем содержимое, затем расширение
func IsImage(f entity.SourceFile) bool {
	if f.MIME != "" {
		return strings.HasPrefix(strings.ToLower(f.MIME), "image/")
	}
	if len(f.Data) > 0 && strings.HasPrefix(http.DetectContentType(f.Data), "image/") {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))), "image/")
}

// Проверка реализации интерфейса
var _ port.AssetAcquirer = (*Acquirer)(nil)
