package web

import (
	app "defect-console/internal/application"
	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/viewport"
)

type errorResponse struct {
	Error string `json:"error"`
}

type helloMessage struct {
	Kind     string       `json:"kind"`
	Snapshot app.Snapshot `json:"snapshot"`
}

type rejectedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Loaded   int            `json:"loaded"`
	Rejected []rejectedFile `json:"rejected"`
	Error    string         `json:"error,omitempty"`
}

func (r uploadResponse) withError(err error) uploadResponse {
	r.Error = err.Error()
	return r
}

func rejectedFiles(report *entity.ImportReport) []rejectedFile {
	out := []rejectedFile{}
	if report == nil {
		return out
	}
	for _, e := range report.Rejected {
		out = append(out, rejectedFile{Name: e.Name, Error: e.Err.Error()})
	}
	return out
}

type overlaysResponse struct {
	Presentation string             `json:"presentation"`
	Viewport     viewport.State     `json:"viewport"`
	Overlays     []viewport.Overlay `json:"overlays"`
}

type zoomRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"delta_y"`
}

type stepRequest struct {
	Direction int `json:"direction"`
}

type resizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type filterRequest struct {
	Selector string `json:"selector"`
}

type filterResponse struct {
	Selector string          `json:"selector"`
	Options  []string        `json:"options"`
	Defects  []entity.Defect `json:"defects"`
}
