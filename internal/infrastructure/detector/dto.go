package detector

import (
	"strings"

	"defect-console/internal/domain/entity"
)

type pointDTO struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type boxDTO struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type defectDTO struct {
	Type       string    `json:"type"`
	Position   *pointDTO `json:"position"`
	BBox       *boxDTO   `json:"bbox"`
	Confidence *float64  `json:"confidence"`
	Severity   string    `json:"severity"`
}

type statisticsDTO struct {
	TotalDefects int            `json:"total_defects"`
	DefectTypes  map[string]int `json:"defect_types"`
	Accuracy     float64        `json:"accuracy"`
}

type dimensionsDTO struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// detectResponse ответ POST /api/detect
type detectResponse struct {
	Status          string         `json:"status"`
	Defects         []defectDTO    `json:"defects"`
	Statistics      *statisticsDTO `json:"statistics"`
	ImageDimensions *dimensionsDTO `json:"image_dimensions"`
	Error           string         `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse ответ GET /api/system-status
type statusResponse struct {
	Status       string  `json:"status"`
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	Uptime       string  `json:"uptime"`
	GPUAvailable bool    `json:"gpu_available"`
	ServerIP     string  `json:"server_ip"`
}

func (r *detectResponse) toEntity() *entity.DetectionResult {
	res := entity.EmptyResult()
	for _, d := range r.Defects {
		defect := entity.Defect{
			Type:       entity.DefectType(strings.TrimSpace(d.Type)),
			Confidence: d.Confidence,
			Severity:   entity.Severity(d.Severity),
		}
		if d.BBox != nil {
			defect.BBox = &entity.BoundingBox{X1: d.BBox.X1, Y1: d.BBox.Y1, X2: d.BBox.X2, Y2: d.BBox.Y2}
		}
		if d.Position != nil {
			defect.Position = &entity.PointEstimate{X: d.Position.X, Y: d.Position.Y}
		}
		if defect.Severity == "" && d.Confidence != nil {
			defect.Severity = entity.SeverityFor(*d.Confidence)
		}
		res.Defects = append(res.Defects, defect)
	}

	if r.Statistics != nil {
		res.Statistics.TotalDefects = r.Statistics.TotalDefects
		res.Statistics.Accuracy = r.Statistics.Accuracy
		for t, n := range r.Statistics.DefectTypes {
			res.Statistics.DefectTypes[t] = n
		}
	} else {
		res.Statistics.TotalDefects = len(res.Defects)
		for _, d := range res.Defects {
			res.Statistics.DefectTypes[string(d.Type)]++
		}
	}
	if r.ImageDimensions != nil {
		res.ImageWidth = r.ImageDimensions.Width
		res.ImageHeight = r.ImageDimensions.Height
	}
	return res
}

func (r *statusResponse) toEntity() *entity.SystemStatus {
	return &entity.SystemStatus{
		Status:       r.Status,
		CPUUsage:     r.CPUUsage,
		MemoryUsage:  r.MemoryUsage,
		Uptime:       r.Uptime,
		GPUAvailable: r.GPUAvailable,
		ServerIP:     r.ServerIP,
	}
}
