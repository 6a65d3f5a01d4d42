package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// Каталоги внутри выгрузки
const (
	ImagesDir = "Annotated_Images"
	JSONDir   = "JSON_Files"
)

// document содержимое JSON-файла одного изображения
type document struct {
	Image      string            `json:"image"`
	Defects    []entity.Defect   `json:"defects"`
	Statistics entity.Statistics `json:"statistics"`
}

// Exporter сохраняет историю в <root>/<время>/Annotated_Images и JSON_Files
type Exporter struct {
	root      string
	annotator port.Annotator
	log       *logrus.Entry
	now       func() time.Time
}

func NewExporter(root string, annotator port.Annotator, log *logrus.Entry) *Exporter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Exporter{root: root, annotator: annotator, log: log.WithField("component", "export"), now: time.Now}
}

// Export пишет PNG с рамками и JSON-результат для каждой записи истории
func (e *Exporter) Export(entries []entity.HistoryEntry) (*entity.ExportReport, error) {
	dir := filepath.Join(e.root, "detection_results_"+e.now().Format("20060102_150405"))
	for _, sub := range []string{ImagesDir, JSONDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", sub)
		}
	}

	report := &entity.ExportReport{Dir: dir}
	used := make(map[string]int)
	for _, entry := range entries {
		if entry.Asset == nil || entry.Result == nil {
			report.Skipped++
			continue
		}
		base := uniqueName(baseName(entry.Asset.Name, entry.Index), used)

		doc := document{Image: entry.Asset.Name, Defects: entry.Result.Defects, Statistics: entry.Result.Statistics}
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return report, errors.Wrap(err, "encode result")
		}
		jsonPath := filepath.Join(dir, JSONDir, base+"_result.json")
		if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
			return report, errors.Wrapf(err, "write %s", jsonPath)
		}
		report.Documents = append(report.Documents, jsonPath)

		if e.annotator == nil {
			continue
		}
		png, err := e.annotator.Annotate(entry.Asset, entry.Result.Defects)
		if err != nil {
			e.log.WithError(err).WithField("image", entry.Asset.Name).Warn("annotated image skipped")
			report.Skipped++
			continue
		}
		imgPath := filepath.Join(dir, ImagesDir, base+"_annotated.png")
		if err := os.WriteFile(imgPath, png, 0o644); err != nil {
			return report, errors.Wrapf(err, "write %s", imgPath)
		}
		report.Images = append(report.Images, imgPath)
	}

	e.log.WithFields(logrus.Fields{
		"dir":       dir,
		"images":    len(report.Images),
		"documents": len(report.Documents),
		"skipped":   report.Skipped,
	}).Info("results exported")
	return report, nil
}

// baseName имя файла без расширения, безопасное для файловой системы
func baseName(name string, index int) string {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		return fmt.Sprintf("image_%d", index+1)
	}
	return name
}

func uniqueName(name string, used map[string]int) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

// Проверка реализации интерфейса
var _ port.ResultExporter = (*Exporter)(nil)
