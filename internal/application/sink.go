package app

import (
	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// MultiSink передаёт каждое событие всем поверхностям по очереди
type MultiSink []port.EventSink

func (m MultiSink) Publish(e entity.Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

var _ port.EventSink = MultiSink(nil)
