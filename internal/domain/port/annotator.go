package port

import "defect-console/internal/domain/entity"

// Annotator рисует рамки дефектов поверх изображения
type Annotator interface {
	// Annotate возвращает PNG с подписанными рамками
	Annotate(asset *entity.ImageAsset, defects []entity.Defect) ([]byte, error)
}

// ResultExporter сохраняет результаты истории на диск
type ResultExporter interface {
	Export(entries []entity.HistoryEntry) (*entity.ExportReport, error)
}
