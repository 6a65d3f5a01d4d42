package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"defect-console/internal/domain/entity"
)

type Config struct {
	HTTPAddr        string
	DetectorURL     string
	DetectorTimeout time.Duration
	StatusInterval  time.Duration
	TelegramToken   string

	CameraDevice string
	CameraWidth  int
	CameraHeight int

	DisplayMaxSide    int
	BatchItemDelay    time.Duration
	LivePeriod        time.Duration
	PausePollInterval time.Duration
	Thresholds        entity.Thresholds

	ExportDir string
	LogLevel  string
	LogFile   string
}

// fileConfig необязательный YAML-файл из CONSOLE_CONFIG
type fileConfig struct {
	Detector struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"detector"`
	Camera struct {
		Device string `yaml:"device"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
	} `yaml:"camera"`
	Thresholds *entity.Thresholds `yaml:"thresholds"`
	ExportDir  string             `yaml:"export_dir"`
}

// Default значения по умолчанию
func Default() *Config {
	return &Config{
		HTTPAddr:          ":8080",
		DetectorURL:       "http://localhost:5000",
		DetectorTimeout:   60 * time.Second,
		StatusInterval:    5 * time.Second,
		CameraDevice:      "0",
		CameraWidth:       1280,
		CameraHeight:      720,
		DisplayMaxSide:    entity.MaxDisplaySide,
		BatchItemDelay:    time.Second,
		LivePeriod:        2 * time.Second,
		PausePollInterval: 100 * time.Millisecond,
		Thresholds:        entity.DefaultThresholds(),
		ExportDir:         "exports",
		LogLevel:          "info",
	}
}

// Load читает .env, YAML из CONSOLE_CONFIG и переменные окружения. Окружение важнее файла.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONSOLE_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile накладывает значения из YAML-файла
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if fc.Detector.URL != "" {
		c.DetectorURL = fc.Detector.URL
	}
	if fc.Detector.Timeout != "" {
		d, err := time.ParseDuration(fc.Detector.Timeout)
		if err != nil {
			return fmt.Errorf("detector.timeout: %w", err)
		}
		c.DetectorTimeout = d
	}
	if fc.Camera.Device != "" {
		c.CameraDevice = fc.Camera.Device
	}
	if fc.Camera.Width > 0 {
		c.CameraWidth = fc.Camera.Width
	}
	if fc.Camera.Height > 0 {
		c.CameraHeight = fc.Camera.Height
	}
	if fc.Thresholds != nil {
		t := *fc.Thresholds
		if t.IoU == 0 {
			t.IoU = c.Thresholds.IoU
		}
		if t.Confidence == 0 {
			t.Confidence = c.Thresholds.Confidence
		}
		if t.Model == "" {
			t.Model = c.Thresholds.Model
		}
		c.Thresholds = t
	}
	if fc.ExportDir != "" {
		c.ExportDir = fc.ExportDir
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.DetectorURL = getEnv("DETECTOR_URL", c.DetectorURL)
	c.DetectorTimeout = getEnvAsDuration("DETECTOR_TIMEOUT", c.DetectorTimeout)
	c.StatusInterval = getEnvAsDuration("STATUS_INTERVAL", c.StatusInterval)
	c.TelegramToken = getEnv("TELEGRAM_TOKEN", c.TelegramToken)

	c.CameraDevice = getEnv("CAMERA_DEVICE", c.CameraDevice)
	c.CameraWidth = getEnvAsInt("CAMERA_WIDTH", c.CameraWidth)
	c.CameraHeight = getEnvAsInt("CAMERA_HEIGHT", c.CameraHeight)

	c.DisplayMaxSide = getEnvAsInt("DISPLAY_MAX_SIDE", c.DisplayMaxSide)
	c.BatchItemDelay = getEnvAsDuration("BATCH_ITEM_DELAY", c.BatchItemDelay)
	c.LivePeriod = getEnvAsDuration("LIVE_PERIOD", c.LivePeriod)
	c.PausePollInterval = getEnvAsDuration("PAUSE_POLL_INTERVAL", c.PausePollInterval)
	c.Thresholds.IoU = getEnvAsFloat("IOU_THRESHOLD", c.Thresholds.IoU)
	c.Thresholds.Confidence = getEnvAsFloat("CONF_THRESHOLD", c.Thresholds.Confidence)
	if v := os.Getenv("MODEL"); v != "" {
		model, err := entity.ParseModelPreset(v)
		if err != nil {
			return err
		}
		c.Thresholds.Model = model
	}

	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	return nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	u, err := url.Parse(c.DetectorURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("detector url %q must be an absolute http(s) url", c.DetectorURL)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address is empty")
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("camera resolution %dx%d is invalid", c.CameraWidth, c.CameraHeight)
	}
	if c.DisplayMaxSide <= 0 {
		return fmt.Errorf("display max side must be positive, got %d", c.DisplayMaxSide)
	}
	if c.BatchItemDelay < 0 || c.LivePeriod <= 0 || c.PausePollInterval <= 0 || c.StatusInterval <= 0 {
		return fmt.Errorf("loop intervals must be positive")
	}
	model, err := entity.ParseModelPreset(string(c.Thresholds.Model))
	if err != nil {
		return err
	}
	c.Thresholds.Model = model
	return c.Thresholds.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration принимает "1500ms", "2s" или целое число миллисекунд
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
