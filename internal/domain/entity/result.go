package entity

import "sort"

// Statistics сводка по результату детекции
type Statistics struct {
	TotalDefects int            `json:"total_defects"`
	DefectTypes  map[string]int `json:"defect_types"`
	Accuracy     float64        `json:"accuracy"` // средняя уверенность, %
}

// DetectionResult результат детекции одного изображения
type DetectionResult struct {
	Defects     []Defect   `json:"defects"`
	Statistics  Statistics `json:"statistics"`
	ImageWidth  int        `json:"image_width,omitempty"`
	ImageHeight int        `json:"image_height,omitempty"`
}

// EmptyResult возвращает результат без дефектов
func EmptyResult() *DetectionResult {
	return &DetectionResult{
		Defects:    []Defect{},
		Statistics: Statistics{DefectTypes: map[string]int{}},
	}
}

// HasDefects сообщает, найдены ли дефекты
func (r *DetectionResult) HasDefects() bool {
	return r != nil && len(r.Defects) > 0
}

// HistoryEntry запись истории: изображение и его результат
type HistoryEntry struct {
	Index  int              `json:"index"`
	Asset  *ImageAsset      `json:"asset"`
	Result *DetectionResult `json:"result"`
}

// BatchSummary агрегированная статистика по истории пакета
type BatchSummary struct {
	Images       int            `json:"images"`
	WithDefects  int            `json:"with_defects"`
	TotalDefects int            `json:"total_defects"`
	DefectTypes  map[string]int `json:"defect_types"`
}

// Summarize считает сводку по записям истории
func Summarize(entries []HistoryEntry) BatchSummary {
	s := BatchSummary{DefectTypes: make(map[string]int)}
	for _, e := range entries {
		s.Images++
		if !e.Result.HasDefects() {
			continue
		}
		s.WithDefects++
		for _, d := range e.Result.Defects {
			s.TotalDefects++
			s.DefectTypes[string(d.Type.Normalize())]++
		}
	}
	return s
}

// SortedTypes возвращает типы дефектов сводки по убыванию количества
func (s BatchSummary) SortedTypes() []string {
	types := make([]string, 0, len(s.DefectTypes))
	for t := range s.DefectTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if s.DefectTypes[types[i]] != s.DefectTypes[types[j]] {
			return s.DefectTypes[types[i]] > s.DefectTypes[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}

// ExportReport итог выгрузки результатов
type ExportReport struct {
	Dir       string   `json:"dir"`
	Images    []string `json:"images"`
	Documents []string `json:"documents"`
	Skipped   int      `json:"skipped"`
}
