package export

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"defect-console/internal/domain/entity"
)

func grayAsset(name string, w, h int) *entity.ImageAsset {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return &entity.ImageAsset{
		ID:            name,
		Name:          name,
		Handle:        entity.NewImageHandle(img, nil, "image/png"),
		DisplayWidth:  w,
		DisplayHeight: h,
	}
}

func conf(v float64) *float64 { return &v }

func TestAnnotator_RenderDrawsTypeColour(t *testing.T) {
	asset := grayAsset("board.png", 200, 120)
	defects := []entity.Defect{
		{Type: entity.DefectShort, Confidence: conf(90), BBox: &entity.BoundingBox{X1: 20, Y1: 40, X2: 80, Y2: 100}},
		{Type: entity.DefectSpur, BBox: &entity.BoundingBox{X1: 90, Y1: 10, X2: 50, Y2: 20}},
	}

	img, err := NewAnnotator().Render(asset, defects)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 120), img.Bounds())

	// левая граница рамки short окрашена #ffc53d
	require.Equal(t, color.RGBA{R: 0xff, G: 0xc5, B: 0x3d, A: 0xff}, img.RGBAAt(20, 70))
	// внутри рамки фон не тронут
	require.Equal(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, img.RGBAAt(50, 70))
	// исходный растр не изменился
	raster, _ := asset.Handle.Raster()
	require.Equal(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, raster.(*image.RGBA).RGBAAt(20, 70))
}

func TestAnnotator_ReleasedAsset(t *testing.T) {
	asset := grayAsset("board.png", 10, 10)
	asset.Handle.Release()
	_, err := NewAnnotator().Annotate(asset, nil)
	require.ErrorIs(t, err, entity.ErrAssetReleased)
}

func TestParseHex(t *testing.T) {
	require.Equal(t, color.RGBA{R: 0x92, G: 0x54, B: 0xde, A: 0xff}, parseHex("#9254de"))
	require.Equal(t, color.RGBA{R: 0xff, A: 0xff}, parseHex("nope"))
}

func TestExporter_Export(t *testing.T) {
	root := t.TempDir()
	logger, _ := test.NewNullLogger()
	exp := NewExporter(root, NewAnnotator(), logrus.NewEntry(logger))
	exp.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	released := grayAsset("gone.png", 20, 20)
	released.Handle.Release()

	result := &entity.DetectionResult{
		Defects:    []entity.Defect{{Type: entity.DefectMouseBite, Confidence: conf(75), BBox: &entity.BoundingBox{X1: 1, Y1: 1, X2: 10, Y2: 10}}},
		Statistics: entity.Statistics{TotalDefects: 1, DefectTypes: map[string]int{"mouse_bite": 1}, Accuracy: 75},
	}
	entries := []entity.HistoryEntry{
		{Index: 0, Asset: grayAsset("a.png", 40, 30), Result: result},
		{Index: 1, Asset: grayAsset("a.jpg", 40, 30), Result: entity.EmptyResult()},
		{Index: 2, Asset: released, Result: result},
		{Index: 3},
	}

	report, err := exp.Export(entries)
	require.NoError(t, err)

	dir := filepath.Join(root, "detection_results_20240501_103000")
	require.Equal(t, dir, report.Dir)
	require.Equal(t, []string{
		filepath.Join(dir, ImagesDir, "a_annotated.png"),
		filepath.Join(dir, ImagesDir, "a_2_annotated.png"),
	}, report.Images)
	require.Len(t, report.Documents, 3)
	require.Equal(t, 2, report.Skipped)

	raw, err := os.ReadFile(filepath.Join(dir, JSONDir, "a_result.json"))
	require.NoError(t, err)
	var doc struct {
		Image      string            `json:"image"`
		Defects    []entity.Defect   `json:"defects"`
		Statistics entity.Statistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "a.png", doc.Image)
	require.Len(t, doc.Defects, 1)
	require.Equal(t, 1, doc.Statistics.DefectTypes["mouse_bite"])

	_, err = os.Stat(filepath.Join(dir, JSONDir, "gone_result.json"))
	require.NoError(t, err)
}
