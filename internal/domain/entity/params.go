package entity

import "fmt"

// ModelPreset вариант модели с голосованием по ориентациям
type ModelPreset string

const (
	ModelPrimary ModelPreset = "primary"
	ModelVote2   ModelPreset = "vote2"
	ModelVote4   ModelPreset = "vote4"
)

// Границы порогов
const (
	MinThreshold = 0.1
	MaxThreshold = 1.0

	DefaultIoUThreshold        = 0.45
	DefaultConfidenceThreshold = 0.40
)

// ParseModelPreset разбирает имя модели, допуская названия вида "yolov11-vote2"
func ParseModelPreset(s string) (ModelPreset, error) {
	switch s {
	case "primary", "yolov11", "":
		return ModelPrimary, nil
	case "vote2", "yolov11-vote2":
		return ModelVote2, nil
	case "vote4", "yolov11-vote4":
		return ModelVote4, nil
	}
	return "", fmt.Errorf("unknown model preset %q", s)
}

// Voting возвращает пару (vote_threshold, orientation_count) для детектора
func (m ModelPreset) Voting() (voteThreshold, orientationCount int) {
	switch m {
	case ModelVote2:
		return 1, 2
	case ModelVote4:
		return 2, 4
	default:
		return 1, 1
	}
}

// DetectionParams параметры одного вызова детектора
type DetectionParams struct {
	VoteThreshold       int
	OrientationCount    int
	IoUThreshold        float64
	ConfidenceThreshold float64
	ImageWidth          int // 0: не передавать
	ImageHeight         int
}

// Thresholds пороги, выбранные оператором
type Thresholds struct {
	IoU        float64     `json:"iou_threshold" yaml:"iou_threshold"`
	Confidence float64     `json:"conf_threshold" yaml:"conf_threshold"`
	Model      ModelPreset `json:"model" yaml:"model"`
}

// DefaultThresholds пороги по умолчанию
func DefaultThresholds() Thresholds {
	return Thresholds{
		IoU:        DefaultIoUThreshold,
		Confidence: DefaultConfidenceThreshold,
		Model:      ModelPrimary,
	}
}

// Validate проверяет диапазоны порогов
func (t Thresholds) Validate() error {
	if t.IoU < MinThreshold || t.IoU > MaxThreshold {
		return fmt.Errorf("iou threshold %.2f out of range [%.1f, %.1f]", t.IoU, MinThreshold, MaxThreshold)
	}
	if t.Confidence < MinThreshold || t.Confidence > MaxThreshold {
		return fmt.Errorf("confidence threshold %.2f out of range [%.1f, %.1f]", t.Confidence, MinThreshold, MaxThreshold)
	}
	if _, err := ParseModelPreset(string(t.Model)); err != nil {
		return err
	}
	return nil
}

// Params собирает параметры вызова детектора для изображения
func (t Thresholds) Params(asset *ImageAsset) DetectionParams {
	vote, orientations := t.Model.Voting()
	p := DetectionParams{
		VoteThreshold:       vote,
		OrientationCount:    orientations,
		IoUThreshold:        t.IoU,
		ConfidenceThreshold: t.Confidence,
	}
	if asset != nil {
		p.ImageWidth = asset.DisplayWidth
		p.ImageHeight = asset.DisplayHeight
	}
	return p
}
