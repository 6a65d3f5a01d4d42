package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// DefaultStatusInterval период опроса состояния сервера детекции
const DefaultStatusInterval = 5 * time.Second

// StatusMonitor периодически опрашивает сервер детекции и публикует его состояние
type StatusMonitor struct {
	source   port.StatusSource
	sink     port.EventSink
	interval time.Duration
	log      *logrus.Entry
}

func NewStatusMonitor(source port.StatusSource, sink port.EventSink, interval time.Duration, log *logrus.Entry) *StatusMonitor {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StatusMonitor{source: source, sink: sink, interval: interval, log: log.WithField("component", "status")}
}

// Run опрашивает сразу и затем каждые interval до отмены ctx
func (m *StatusMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll выполняет один опрос. При ошибке публикуется состояние "offline".
func (m *StatusMonitor) Poll(ctx context.Context) *entity.SystemStatus {
	reqCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	status, err := m.source.Fetch(reqCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		m.log.WithError(err).Debug("system status unavailable")
		status = &entity.SystemStatus{Status: "offline"}
	}
	m.sink.Publish(entity.Event{Kind: entity.EventSystemStatus, At: time.Now(), Status: status})
	return status
}
