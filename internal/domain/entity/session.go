package entity

import (
	"fmt"
	"time"
)

// CaptureMode что сейчас выполняется
type CaptureMode string

const (
	ModeIdle       CaptureMode = "idle"
	ModeSingleShot CaptureMode = "single_shot"
	ModeBatch      CaptureMode = "batch"
	ModeLive       CaptureMode = "live"
)

// CaptureSession единственный источник правды о текущем запуске
type CaptureSession struct {
	Mode         CaptureMode `json:"mode"`
	Paused       bool        `json:"paused"`
	CurrentIndex int         `json:"current_index"`
	StartedAt    time.Time   `json:"started_at,omitempty"`
	StoppedAt    time.Time   `json:"stopped_at,omitempty"`
}

// Running сообщает, идёт ли пакетный или живой цикл
func (c CaptureSession) Running() bool {
	return c.Mode == ModeBatch || c.Mode == ModeLive
}

// Elapsed длительность запуска: текущая во время работы, зафиксированная после остановки
func (c CaptureSession) Elapsed(now time.Time) time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	if !c.StoppedAt.IsZero() {
		return c.StoppedAt.Sub(c.StartedAt)
	}
	return now.Sub(c.StartedAt)
}

// FormatElapsed форматирует длительность как "1h 2m 3s"
func FormatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
