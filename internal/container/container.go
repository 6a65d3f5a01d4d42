package container

import (
	"time"

	"github.com/sirupsen/logrus"

	"defect-console/config"
	"defect-console/internal/api/web"
	app "defect-console/internal/application"
	"defect-console/internal/domain/port"
	"defect-console/internal/infrastructure/camera"
	"defect-console/internal/infrastructure/detector"
	"defect-console/internal/infrastructure/export"
	"defect-console/internal/infrastructure/imaging"
	"defect-console/internal/logger"
)

type Container struct {
	Lifecycle         *app.Lifecycle
	Session           *app.DetectionSession
	OperatorService   *app.OperatorService
	InspectionService *app.InspectionService
	StatusMonitor     *app.StatusMonitor
	Acquirer          *imaging.Acquirer
	Hub               *web.Hub
	Server            *web.Server

	sinks *fanOut
}

// fanOut позволяет подключить бота после сборки сессии
type fanOut struct {
	app.MultiSink
}

func (f *fanOut) add(s port.EventSink) {
	f.MultiSink = append(f.MultiSink, s)
}

// New собирает сервисы приложения. Бот подключается позже через AddSink.
func New(cfg *config.Config, operators port.OperatorRepository, log *logrus.Logger) *Container {
	lifecycle := app.NewLifecycle(logger.Component(log, "lifecycle"))
	acquirer := imaging.NewAcquirer(lifecycle, cfg.DisplayMaxSide, logger.Component(log, "imaging"))
	client := detector.NewClient(cfg.DetectorURL, cfg.DetectorTimeout, logger.Component(log, "detector"))
	device := camera.NewDevice(cfg.CameraDevice, logger.Component(log, "camera"))

	hub := web.NewHub(logger.Component(log, "websocket"))
	sinks := &fanOut{MultiSink: app.MultiSink{hub}}

	session := app.NewDetectionSession(app.SessionDeps{
		Detector:  client,
		Camera:    device,
		Frames:    acquirer,
		Sink:      sinks,
		Lifecycle: lifecycle,
		Log:       logger.Component(log, "session"),
	}, app.SessionConfig{
		ItemDelay:  cfg.BatchItemDelay,
		LivePeriod: cfg.LivePeriod,
		PausePoll:  cfg.PausePollInterval,
		Resolution: port.Resolution{Width: cfg.CameraWidth, Height: cfg.CameraHeight},
		Thresholds: cfg.Thresholds,
	})

	annotator := export.NewAnnotator()
	exporter := export.NewExporter(cfg.ExportDir, annotator, logger.Component(log, "export"))

	operatorService := app.NewOperatorService(operators)
	inspectionService := app.NewInspectionService(operatorService, acquirer, session, annotator, exporter, logger.Component(log, "inspection"))
	statusMonitor := app.NewStatusMonitor(client, sinks, statusInterval(cfg), logger.Component(log, "status"))

	server := web.NewServer(web.Deps{
		Session:    session,
		Acquirer:   acquirer,
		Inspection: inspectionService,
		Status:     statusMonitor,
		Hub:        hub,
		Sink:       sinks,
		Log:        logger.Component(log, "http"),
	})

	return &Container{
		Lifecycle:         lifecycle,
		Session:           session,
		OperatorService:   operatorService,
		InspectionService: inspectionService,
		StatusMonitor:     statusMonitor,
		Acquirer:          acquirer,
		Hub:               hub,
		Server:            server,
		sinks:             sinks,
	}
}

// AddSink подписывает ещё одну поверхность на события. Вызывать до запуска.
func (c *Container) AddSink(s port.EventSink) {
	c.sinks.add(s)
}

// Close останавливает сессию и освобождает ресурсы
func (c *Container) Close() {
	c.Session.Close()
}

func statusInterval(cfg *config.Config) time.Duration {
	if cfg.StatusInterval <= 0 {
		return app.DefaultStatusInterval
	}
	return cfg.StatusInterval
}
