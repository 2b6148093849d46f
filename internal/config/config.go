package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	CameraURL    string
	CameraName   string
	DBPath       string
	LogDirectory string

	// Detector models. The general model finds persons and vehicles, the
	// violation model finds helmet / no helmet / plate_<text> inside a rider crop.
	GeneralModelPath    string
	GeneralConfigPath   string
	GeneralLabelsPath   string
	ViolationModelPath  string
	ViolationConfigPath string
	ViolationLabelsPath string
	DetectionConfidence float64

	TargetFPS        int
	SkipInference    int // Co którą klatkę przetwarzać (1=każdą, 3=co trzecią)
	DetectionWidth   int
	DetectionHeight  int
	JPEGQuality      int
	PlateJPEGQuality int

	PairIOU          float64
	DedupIOU         float64
	DedupTimeWindow  time.Duration
	DedupFrameWindow int
	DedupRingSize    int
	HashRetention    time.Duration
	SweepInterval    time.Duration

	MinSpeedKPH         float64 // 0 disables speed gating
	PixelsPerMeter      float64
	SpeedWindow         int
	TrackMaxStaleFrames int
	TrackMaxDistance    float64

	QueueTimeout      time.Duration
	CaptureRetryDelay time.Duration
	ShutdownTimeout   time.Duration

	ArchiveDirectory     string // empty disables the on-disk evidence archive
	ArchiveBufferLimit   int
	ArchiveFlushInterval time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	modelDir := getEnv("MODEL_DIR", filepath.Join(".", "models"))

	return &Config{
		Port:         getEnvAsInt("PORT", 8081),
		CameraURL:    getEnv("CAMERA_URL", "http://192.168.1.5:8080/video"),
		CameraName:   getEnv("CAMERA_NAME", "Default Camera"),
		DBPath:       getEnv("DB_PATH", filepath.Join(".", "data", "sras.db")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		GeneralModelPath:    getEnv("GENERAL_MODEL_PATH", filepath.Join(modelDir, "general.onnx")),
		GeneralConfigPath:   getEnv("GENERAL_CONFIG_PATH", ""),
		GeneralLabelsPath:   getEnv("GENERAL_LABELS_PATH", filepath.Join(modelDir, "general.names")),
		ViolationModelPath:  getEnv("VIOLATION_MODEL_PATH", filepath.Join(modelDir, "violation.onnx")),
		ViolationConfigPath: getEnv("VIOLATION_CONFIG_PATH", ""),
		ViolationLabelsPath: getEnv("VIOLATION_LABELS_PATH", filepath.Join(modelDir, "violation.names")),
		DetectionConfidence: getEnvAsFloat("DETECTION_CONFIDENCE", 0.4),

		TargetFPS:        getEnvAsInt("TARGET_FPS", 30),
		SkipInference:    getEnvAsInt("SKIP_INFERENCE", 1),
		DetectionWidth:   getEnvAsInt("DETECTION_WIDTH", 640),
		DetectionHeight:  getEnvAsInt("DETECTION_HEIGHT", 360),
		JPEGQuality:      getEnvAsInt("JPEG_QUALITY", 100),
		PlateJPEGQuality: getEnvAsInt("PLATE_JPEG_QUALITY", 90),

		PairIOU:          getEnvAsFloat("PAIR_IOU", 0.1),
		DedupIOU:         getEnvAsFloat("DEDUP_IOU", 0.7),
		DedupTimeWindow:  getEnvAsDuration("DEDUP_TIME_WINDOW", 300*time.Second),
		DedupFrameWindow: getEnvAsInt("DEDUP_FRAME_WINDOW", 60),
		DedupRingSize:    getEnvAsInt("DEDUP_RING_SIZE", 100),
		HashRetention:    getEnvAsDuration("HASH_RETENTION", 10*time.Minute),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", 300*time.Second),

		MinSpeedKPH:         getEnvAsFloat("MIN_SPEED_KPH", 2.0),
		PixelsPerMeter:      getEnvAsFloat("PIXELS_PER_METER", 20),
		SpeedWindow:         getEnvAsInt("SPEED_WINDOW", 2),
		TrackMaxStaleFrames: getEnvAsInt("TRACK_MAX_STALE_FRAMES", 30),
		TrackMaxDistance:    getEnvAsFloat("TRACK_MAX_DISTANCE", 100),

		QueueTimeout:      getEnvAsDuration("QUEUE_TIMEOUT", 100*time.Millisecond),
		CaptureRetryDelay: getEnvAsDuration("CAPTURE_RETRY_DELAY", 10*time.Millisecond),
		ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", time.Second),

		ArchiveDirectory:     getEnv("ARCHIVE_DIR", ""),
		ArchiveBufferLimit:   getEnvAsInt("ARCHIVE_BUFFER_LIMIT", 20),
		ArchiveFlushInterval: getEnvAsDuration("ARCHIVE_FLUSH_INTERVAL", 30*time.Second),
	}
}

// Validate rejects values the worker loops cannot run with.
func (c *Config) Validate() error {
	if c.CameraURL == "" {
		return fmt.Errorf("CAMERA_URL is required")
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("TARGET_FPS must be positive, got %d", c.TargetFPS)
	}
	if c.SkipInference <= 0 {
		return fmt.Errorf("SKIP_INFERENCE must be positive, got %d", c.SkipInference)
	}
	if c.DetectionWidth <= 0 || c.DetectionHeight <= 0 {
		return fmt.Errorf("detection size must be positive, got %dx%d", c.DetectionWidth, c.DetectionHeight)
	}
	if c.PixelsPerMeter <= 0 {
		return fmt.Errorf("PIXELS_PER_METER must be positive, got %v", c.PixelsPerMeter)
	}
	if c.MinSpeedKPH < 0 {
		return fmt.Errorf("MIN_SPEED_KPH must not be negative, got %v", c.MinSpeedKPH)
	}
	if c.QueueTimeout <= 0 || c.SweepInterval <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("QUEUE_TIMEOUT, SWEEP_INTERVAL and SHUTDOWN_TIMEOUT must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 || c.PlateJPEGQuality < 1 || c.PlateJPEGQuality > 100 {
		return fmt.Errorf("JPEG quality must be within 1..100")
	}
	return nil
}

// FrameInterval is the pacing interval of the MJPEG stream.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.TargetFPS)
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
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("300s", "10m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
