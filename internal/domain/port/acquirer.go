package port

import "defect-console/internal/domain/entity"

// FrameCapturer снимает кадры с видеопотока
type FrameCapturer interface {
	// FromVideoFrame возвращает nil без ошибки, если кадр ещё не готов
	FromVideoFrame(src VideoSource) (*entity.ImageAsset, error)
}

// AssetAcquirer превращает файлы и кадры в нормализованные изображения
type AssetAcquirer interface {
	FrameCapturer

	// FromFile декодирует один файл, ошибка *entity.DecodeError
	FromFile(file entity.SourceFile) (*entity.ImageAsset, error)

	// FromFileList оставляет только изображения, entity.ErrEmptyBatch если их нет
	FromFileList(files []entity.SourceFile) (*entity.ImportReport, error)
}
