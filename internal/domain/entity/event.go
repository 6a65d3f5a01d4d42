package entity

import "time"

// EventKind тип события сессии
type EventKind string

const (
	EventAssetsLoaded    EventKind = "assets_loaded"
	EventAssetSelected   EventKind = "asset_selected"
	EventResultDisplayed EventKind = "result_displayed"
	EventOverlayCleared  EventKind = "overlay_cleared"
	EventRunStarted      EventKind = "run_started"
	EventRunPaused       EventKind = "run_paused"
	EventRunResumed      EventKind = "run_resumed"
	EventRunStopped      EventKind = "run_stopped"
	EventRunCompleted    EventKind = "run_completed"
	EventCameraOn        EventKind = "camera_on"
	EventCameraOff       EventKind = "camera_off"
	EventViewportChanged EventKind = "viewport_changed"
	EventFilterChanged   EventKind = "filter_changed"
	EventSystemStatus    EventKind = "system_status"
	EventNotification    EventKind = "notification"
)

// NotificationLevel уровень кратковременного уведомления
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Event событие для поверхности отображения
type Event struct {
	Kind    EventKind         `json:"kind"`
	At      time.Time         `json:"at"`
	Mode    CaptureMode       `json:"mode,omitempty"`
	Index   int               `json:"index"`
	Level   NotificationLevel `json:"level,omitempty"`
	Message string            `json:"message,omitempty"`
	Result  *DetectionResult  `json:"result,omitempty"`
	Status  *SystemStatus     `json:"status,omitempty"`
	Elapsed string            `json:"elapsed,omitempty"`
}

// Notify создаёт событие-уведомление
func Notify(level NotificationLevel, message string) Event {
	return Event{Kind: EventNotification, At: time.Now(), Level: level, Message: message}
}

// SystemStatus состояние сервера детекции, только для отображения
type SystemStatus struct {
	Status       string  `json:"status"`
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	Uptime       string  `json:"uptime"`
	GPUAvailable bool    `json:"gpu_available"`
	ServerIP     string  `json:"server_ip,omitempty"`
}
