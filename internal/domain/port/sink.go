package port

import "defect-console/internal/domain/entity"

// EventSink поверхность отображения, получающая события сессии
type EventSink interface {
	// Publish не должен блокироваться надолго
	Publish(event entity.Event)
}
