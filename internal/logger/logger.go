// Package logger настраивает logrus для всего приложения.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New создаёт логгер с уровнем level. Если file не пустой, записи дублируются в файл.
// Возвращаемый io.Closer закрывает файл, для вывода только в stdout он ничего не делает.
func New(level, file string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if file == "" {
		log.SetOutput(os.Stdout)
		return log, nopCloser{}, nil
	}

	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create log directory")
		}
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open log file %s", file)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return log, f, nil
}

// Component возвращает запись логгера с полем component
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
