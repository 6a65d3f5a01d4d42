package port

import (
	"context"

	"defect-console/internal/domain/entity"
)

// Detector внешний сервис поиска дефектов
type Detector interface {
	// Detect отправляет изображение и возвращает результат или *entity.DetectionError
	Detect(ctx context.Context, asset *entity.ImageAsset, params entity.DetectionParams) (*entity.DetectionResult, error)
}
