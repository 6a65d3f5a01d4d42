package app

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// ErrSessionBusy сессия занята запуском, камерой или пакетом другого оператора
var ErrSessionBusy = errors.New("detection session is busy")

type InspectionService struct {
	operators *OperatorService
	acquirer  port.AssetAcquirer
	session   *DetectionSession
	annotator port.Annotator
	exporter  port.ResultExporter
	log       *logrus.Entry

	mu     sync.Mutex
	loaded *entity.ImageAsset // последнее фото, загруженное из чата
}

// InspectionOutput содержит результат поиска дефектов и картинку с подсветкой.
type InspectionOutput struct {
	Asset       *entity.ImageAsset
	Result      *entity.DetectionResult
	Highlighted []byte
}

// NewInspectionService создаёт сервис одиночной проверки фото из чата.
func NewInspectionService(operators *OperatorService, acquirer port.AssetAcquirer, session *DetectionSession, annotator port.Annotator, exporter port.ResultExporter, log *logrus.Entry) *InspectionService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InspectionService{
		operators: operators,
		acquirer:  acquirer,
		session:   session,
		annotator: annotator,
		exporter:  exporter,
		log:       log.WithField("component", "inspection"),
	}
}

// Busy сообщает, что фото из чата сейчас нельзя проверить: идёт запуск,
// включена камера или загружены изображения, пришедшие не из чата.
func (s *InspectionService) Busy() bool {
	if s.session == nil {
		return false
	}
	if s.session.Session().Mode != entity.ModeIdle || s.session.CameraOn() {
		return true
	}
	if _, err := s.session.Asset(1); err == nil {
		return true
	}
	first, err := s.session.Asset(0)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return first != s.loaded
}

// ProcessPhoto загружает фото в сессию, запускает детекцию и возвращает оператора в главное меню.
func (s *InspectionService) ProcessPhoto(ctx context.Context, userID, chatID int64, name string, photo []byte) (*InspectionOutput, error) {
	if s.acquirer == nil || s.session == nil {
		return nil, errors.New("detector is not configured")
	}
	if s.Busy() {
		return nil, ErrSessionBusy
	}

	if _, err := s.operators.SetState(ctx, userID, chatID, entity.StateProcessing); err != nil {
		return nil, err
	}
	// Что бы ни случилось, оператор возвращается в меню.
	defer func() {
		_, _ = s.operators.SetState(context.WithoutCancel(ctx), userID, chatID, entity.StateMainMenu)
	}()

	asset, err := s.acquirer.FromFile(entity.SourceFile{Name: name, Data: photo})
	if err != nil {
		return nil, err
	}
	if err := s.session.LoadSingle(asset); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.loaded = asset
	s.mu.Unlock()

	result, err := s.session.DetectCurrent(ctx)
	if err != nil {
		return nil, err
	}

	var highlighted []byte
	if result.HasDefects() && s.annotator != nil {
		highlighted, err = s.annotator.Annotate(asset, result.Defects)
		if err != nil {
			// оператор всё равно получит список дефектов текстом
			s.log.WithError(err).WithField("asset", asset.Name).Warn("annotation failed")
			highlighted = nil
		}
	}
	return &InspectionOutput{Asset: asset, Result: result, Highlighted: highlighted}, nil
}

// Export сохраняет историю текущей сессии
func (s *InspectionService) Export() (*entity.ExportReport, error) {
	if s.exporter == nil {
		return nil, errors.New("export is not configured")
	}
	history := s.session.History()
	if len(history) == 0 {
		return nil, entity.ErrNoAssets
	}
	return s.exporter.Export(history)
}
