package telegram

import (
	"errors"
	"fmt"
	"strings"

	app "defect-console/internal/application"
	"defect-console/internal/domain/entity"
)

var levelIcons = map[entity.NotificationLevel]string{
	entity.LevelInfo:    "ℹ️",
	entity.LevelSuccess: "✅",
	entity.LevelWarning: "⚠️",
	entity.LevelError:   "❌",
}

// FormatNotification текст уведомления сессии для чата
func FormatNotification(e entity.Event) string {
	icon, ok := levelIcons[e.Level]
	if !ok {
		icon = levelIcons[entity.LevelInfo]
	}
	return icon + " " + e.Message
}

// FormatResult описывает найденные дефекты
func FormatResult(r *entity.DetectionResult) string {
	if !r.HasDefects() {
		return msgNoDefects
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Найдено дефектов: %d\n", len(r.Defects))
	for i, d := range r.Defects {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, d.Type)
		if d.Confidence != nil {
			fmt.Fprintf(&sb, " — %.0f%%", *d.Confidence)
		}
		if d.Severity != "" {
			fmt.Fprintf(&sb, " (%s)", d.Severity)
		}
	}
	return sb.String()
}

// FormatSnapshot краткое состояние сессии и сервера детекции
func FormatSnapshot(s app.Snapshot, status *entity.SystemStatus) string {
	var sb strings.Builder
	sb.WriteString("📊 Состояние сессии\n")

	mode := string(s.Session.Mode)
	if s.Session.Paused {
		mode += " (пауза)"
	}
	fmt.Fprintf(&sb, "Режим: %s\n", mode)
	fmt.Fprintf(&sb, "Изображений: %d, обработано: %d\n", len(s.Assets), s.Summary.Images)
	fmt.Fprintf(&sb, "Дефектов: %d", s.Summary.TotalDefects)
	for _, t := range s.Summary.SortedTypes() {
		fmt.Fprintf(&sb, "\n  • %s: %d", t, s.Summary.DefectTypes[t])
	}
	sb.WriteString("\n")

	if s.Camera {
		sb.WriteString("Камера: включена\n")
	} else {
		sb.WriteString("Камера: выключена\n")
	}
	fmt.Fprintf(&sb, "Время работы: %s\n", s.Elapsed)
	fmt.Fprintf(&sb, "Пороги: %s", formatThresholds(s.Thresholds))

	if status != nil {
		fmt.Fprintf(&sb, "\n\n🖥 Сервер: %s, CPU %.1f%%, RAM %.1f%%, аптайм %s",
			status.Status, status.CPUUsage, status.MemoryUsage, status.Uptime)
		if status.GPUAvailable {
			sb.WriteString(", GPU")
		}
	}
	return sb.String()
}

func formatThresholds(t entity.Thresholds) string {
	return fmt.Sprintf("IoU %.2f, уверенность %.2f, модель %s", t.IoU, t.Confidence, t.Model)
}

// errorText переводит ошибку сессии в сообщение оператору
func errorText(err error) string {
	var camErr *entity.CameraAcquisitionError
	var detErr *entity.DetectionError
	switch {
	case errors.Is(err, entity.ErrInvalidTransition):
		return msgNotAllowed
	case errors.Is(err, entity.ErrNoAssets):
		return msgNoAssets
	case errors.Is(err, app.ErrSessionBusy):
		return msgBusy
	case errors.Is(err, entity.ErrSuperseded):
		return msgSuperseded
	case errors.As(err, &camErr):
		switch camErr.Reason {
		case entity.CameraPermissionDenied:
			return "📷 Нет доступа к камере."
		case entity.CameraNotFound:
			return "📷 Камера не найдена."
		case entity.CameraBusy:
			return "📷 Камера занята другим приложением."
		}
		return "📷 Не удалось открыть камеру."
	case errors.As(err, &detErr):
		return "⚠️ Ошибка сервера детекции: " + detErr.Message
	}
	return "⚠️ " + err.Error()
}
