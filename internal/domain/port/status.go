package port

import (
	"context"

	"defect-console/internal/domain/entity"
)

// StatusSource источник состояния сервера детекции
type StatusSource interface {
	Fetch(ctx context.Context) (*entity.SystemStatus, error)
}
