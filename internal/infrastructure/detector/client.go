// Package detector обращается к внешнему сервису поиска дефектов по HTTP.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

const (
	detectPath = "/api/detect"
	statusPath = "/api/system-status"

	// maxResponseSize ограничивает чтение ответа детектора
	maxResponseSize = 16 << 20
)

// Client HTTP-клиент сервиса детекции
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

// NewClient создаёт клиент. timeout <= 0 отключает ограничение времени запроса.
func NewClient(baseURL string, timeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithField("component", "detector"),
	}
}

// Detect отправляет изображение в поле формы "image" и разбирает результат.
// Любая ошибка возвращается как *entity.DetectionError.
func (c *Client) Detect(ctx context.Context, asset *entity.ImageAsset, params entity.DetectionParams) (*entity.DetectionResult, error) {
	if asset == nil {
		return nil, &entity.DetectionError{Message: "no image", Err: entity.ErrNoAssets}
	}
	payload, mimeType, ok := asset.Handle.Payload()
	if !ok {
		return nil, &entity.DetectionError{Message: "image was released", Err: entity.ErrAssetReleased}
	}

	body, contentType, err := multipartBody(asset.Name, mimeType, payload)
	if err != nil {
		return nil, &entity.DetectionError{Message: "could not build request", Err: err}
	}

	endpoint := c.baseURL + detectPath + "?" + Query(params).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &entity.DetectionError{Message: "could not build request", Err: errors.Wrap(err, "new request")}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("detector unreachable")
		return nil, &entity.DetectionError{Message: "detector unreachable: " + err.Error(), Err: errors.Wrap(err, "post detect")}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &entity.DetectionError{Message: "could not read detector response", StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw, resp.StatusCode)
		c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "error": msg}).Warn("detector returned error")
		return nil, &entity.DetectionError{Message: msg, StatusCode: resp.StatusCode}
	}

	var out detectResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &entity.DetectionError{Message: "invalid detector response", StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode detect response")}
	}
	if out.Error != "" {
		return nil, &entity.DetectionError{Message: out.Error, StatusCode: resp.StatusCode}
	}

	result := out.toEntity()
	c.log.WithFields(logrus.Fields{
		"asset":   asset.ID,
		"defects": len(result.Defects),
		"took":    time.Since(started).Round(time.Millisecond),
	}).Debug("detection received")
	return result, nil
}

// Fetch запрашивает состояние сервера детекции
func (c *Client) Fetch(ctx context.Context) (*entity.SystemStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new status request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get system status")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, errors.New(errorMessage(raw, resp.StatusCode))
	}

	var out statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode system status")
	}
	return out.toEntity(), nil
}

// Query собирает параметры запроса детекции
func Query(p entity.DetectionParams) url.Values {
	q := url.Values{}
	q.Set("vote_threshold", strconv.Itoa(p.VoteThreshold))
	q.Set("orientation_count", strconv.Itoa(p.OrientationCount))
	q.Set("iou_threshold", strconv.FormatFloat(p.IoUThreshold, 'f', -1, 64))
	q.Set("conf_threshold", strconv.FormatFloat(p.ConfidenceThreshold, 'f', -1, 64))
	if p.ImageWidth > 0 && p.ImageHeight > 0 {
		q.Set("img_width", strconv.Itoa(p.ImageWidth))
		q.Set("img_height", strconv.Itoa(p.ImageHeight))
	}
	return q
}

func multipartBody(name, mimeType string, payload []byte) (io.Reader, string, error) {
	if name == "" {
		name = "image.jpg"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(fileHeader(name, mimeType))
	if err != nil {
		return nil, "", errors.Wrap(err, "create form part")
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", errors.Wrap(err, "write form part")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close form")
	}
	return &buf, w.FormDataContentType(), nil
}

func fileHeader(name, mimeType string) textproto.MIMEHeader {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="image"; filename="%s"`, escaped)},
		"Content-Type":        {mimeType},
	}
}

// errorMessage достаёт текст из {"error": "..."} или подставляет статус
func errorMessage(raw []byte, status int) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return fmt.Sprintf("detector returned %d %s", status, http.StatusText(status))
}

// Проверка реализации интерфейсов
var (
	_ port.Detector     = (*Client)(nil)
	_ port.StatusSource = (*Client)(nil)
)
