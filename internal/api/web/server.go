// Package web отдаёт состояние сессии детекции по HTTP и websocket.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	app "defect-console/internal/application"
	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
	"defect-console/internal/domain/viewport"
)

// DefaultMaxUpload предел размера формы загрузки пакета
const DefaultMaxUpload = 64 << 20

// Deps зависимости HTTP-сервера
type Deps struct {
	Session    *app.DetectionSession
	Acquirer   port.AssetAcquirer
	Inspection *app.InspectionService
	Status     *app.StatusMonitor
	Hub        *Hub
	Sink       port.EventSink
	Log        *logrus.Entry
	MaxUpload  int64
}

type Server struct {
	session    *app.DetectionSession
	acquirer   port.AssetAcquirer
	inspection *app.InspectionService
	status     *app.StatusMonitor
	hub        *Hub
	sink       port.EventSink
	log        *logrus.Entry
	maxUpload  int64
}

func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	sink := deps.Sink
	if sink == nil {
		sink = app.MultiSink{}
	}
	maxUpload := deps.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Server{
		session:    deps.Session,
		acquirer:   deps.Acquirer,
		inspection: deps.Inspection,
		status:     deps.Status,
		hub:        deps.Hub,
		sink:       sink,
		log:        log.WithField("component", "http"),
		maxUpload:  maxUpload,
	}
}

// Router собирает маршруты API
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/session/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/session/detect", s.handleDetect).Methods(http.MethodPost)
	api.HandleFunc("/session/frame", s.handleActiveImage).Methods(http.MethodGet)
	api.HandleFunc("/overlays", s.handleOverlays).Methods(http.MethodGet)

	api.HandleFunc("/assets", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/assets/{index:[0-9]+}/image", s.handleAssetImage).Methods(http.MethodGet)
	api.HandleFunc("/assets/{index:[0-9]+}/select", s.handleSelect).Methods(http.MethodPost)

	api.HandleFunc("/camera/open", s.handleCameraOpen).Methods(http.MethodPost)
	api.HandleFunc("/camera/close", s.handleCameraClose).Methods(http.MethodPost)

	api.HandleFunc("/viewport", s.handleViewport).Methods(http.MethodGet)
	api.HandleFunc("/viewport/zoom", s.handleZoom).Methods(http.MethodPost)
	api.HandleFunc("/viewport/step", s.handleZoomStep).Methods(http.MethodPost)
	api.HandleFunc("/viewport/pan", s.handlePan).Methods(http.MethodPost)
	api.HandleFunc("/viewport/resize", s.handleResize).Methods(http.MethodPost)
	api.HandleFunc("/viewport/reset", s.handleResetViewport).Methods(http.MethodPost)

	api.HandleFunc("/filter", s.handleFilter).Methods(http.MethodGet, http.MethodPut)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/system-status", s.handleSystemStatus).Methods(http.MethodGet)

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket is disabled", http.StatusServiceUnavailable)
		return
	}
	hello, err := json.Marshal(helloMessage{Kind: "snapshot", Snapshot: s.session.Snapshot()})
	if err != nil {
		writeError(w, err)
		return
	}
	s.hub.ServeWS(w, r, hello)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Session())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.TogglePause(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Session())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Session())
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	result, err := s.session.DetectCurrent(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, overlaysResponse{
		Presentation: s.session.PresentationMode().String(),
		Viewport:     s.session.Viewport(),
		Overlays:     s.session.Overlays(),
	})
}

// handleUpload принимает файлы из поля "files" и заменяет ими текущий пакет
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["image"]
	}

	files := make([]entity.SourceFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "application/octet-stream" {
			// тип не указан, определим по содержимому
			mimeType = ""
		}
		files = append(files, entity.SourceFile{Name: fh.Filename, MIME: mimeType, Data: data})
	}

	report, err := s.acquirer.FromFileList(files)
	resp := uploadResponse{Rejected: rejectedFiles(report)}
	if len(resp.Rejected) > 0 {
		s.sink.Publish(entity.Notify(entity.LevelWarning, fmt.Sprintf("%d file(s) could not be decoded", len(resp.Rejected))))
	}
	if err != nil {
		s.sink.Publish(entity.Notify(entity.LevelWarning, "no image files selected"))
		writeJSON(w, http.StatusBadRequest, resp.withError(err))
		return
	}

	if err := s.session.LoadBatch(report.Assets); err != nil {
		writeError(w, err)
		return
	}
	resp.Loaded = len(report.Assets)
	s.log.WithFields(logrus.Fields{"loaded": resp.Loaded, "rejected": len(resp.Rejected)}).Info("batch uploaded")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssetImage(w http.ResponseWriter, r *http.Request) {
	asset, err := s.session.Asset(pathIndex(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeImage(w, asset)
}

func (s *Server) handleActiveImage(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	if snap.Active == nil {
		writeError(w, entity.ErrNoAssets)
		return
	}
	writeImage(w, snap.Active)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.SelectAsset(pathIndex(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleCameraOpen(w http.ResponseWriter, r *http.Request) {
	if err := s.session.OpenCamera(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleCameraClose(w http.ResponseWriter, r *http.Request) {
	if err := s.session.CloseCamera(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Viewport())
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.session.Zoom(viewport.Point{X: req.X, Y: req.Y}, req.DeltaY))
}

func (s *Server) handleZoomStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.session.ZoomStep(req.Direction))
}

func (s *Server) handlePan(w http.ResponseWriter, r *http.Request) {
	var req viewport.Point
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.session.PanTo(req))
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.session.ResizeContainer(req.Width, req.Height))
}

func (s *Server) handleResetViewport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ResetViewport())
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var req filterRequest
		if !decode(w, r, &req) {
			return
		}
		s.session.SetFilter(req.Selector)
	}
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, filterResponse{Selector: snap.Filter, Options: snap.FilterOptions, Defects: snap.Defects})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Thresholds())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	t := s.session.Thresholds()
	if !decode(w, r, &t) {
		return
	}
	if err := s.session.SetThresholds(t); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Thresholds())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.inspection == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	report, err := s.inspection.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	s.sink.Publish(entity.Notify(entity.LevelSuccess, fmt.Sprintf("exported %d image(s) to %s", len(report.Images), report.Dir)))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "status monitor is disabled")
		return
	}
	status := s.status.Poll(r.Context())
	if status == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "status request cancelled")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func pathIndex(r *http.Request) int {
	// маршрут пропускает только цифры
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return -1
	}
	return i
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeImage(w http.ResponseWriter, asset *entity.ImageAsset) {
	payload, mime, ok := asset.Handle.Payload()
	if !ok {
		writeError(w, entity.ErrAssetReleased)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeError выбирает HTTP-статус по типу ошибки сессии
func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var (
		decodeErr *entity.DecodeError
		cameraErr *entity.CameraAcquisitionError
		detectErr *entity.DetectionError
	)
	switch {
	case errors.Is(err, entity.ErrInvalidTransition), errors.Is(err, entity.ErrFrameNotReady), errors.Is(err, entity.ErrCameraOff),
		errors.Is(err, entity.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, entity.ErrNoAssets), errors.Is(err, entity.ErrEmptyBatch), errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAssetReleased):
		return http.StatusGone
	case errors.As(err, &cameraErr):
		if cameraErr.Reason == entity.CameraPermissionDenied {
			return http.StatusForbidden
		}
		return http.StatusServiceUnavailable
	case errors.As(err, &detectErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
