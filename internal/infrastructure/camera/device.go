// Package camera открывает локальное устройство захвата видео.
package camera

import (
	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/port"
)

// Device устройство захвата: номер камеры ("0") или путь к файлу/потоку
type Device struct {
	source string
	log    *logrus.Entry
}

// NewDevice создаёт описание устройства. Пустой source означает камеру 0.
func NewDevice(source string, log *logrus.Entry) *Device {
	if source == "" {
		source = "0"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Device{source: source, log: log.WithField("component", "camera")}
}

// Source возвращает идентификатор устройства
func (d *Device) Source() string {
	return d.source
}

// Проверка реализации интерфейса
var _ port.Camera = (*Device)(nil)
