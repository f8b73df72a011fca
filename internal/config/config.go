package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // grpc health; empty disables

	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string

	// Storage
	Env         string // "dev" | "prod"
	DBPath      string // e.g. "./data/cerberus.db"
	EvidenceDir string // served under /static
	DatasetDir  string // served under /dataset

	// Devices. An empty value disables the device.
	CameraURL           string
	CameraTimeout       time.Duration
	MatcherURL          string
	MatcherTimeout      time.Duration
	FingerprintPort     string
	FingerprintBaud     int
	FingerprintPassword uint32
	LockPin             string
	LockedHigh          bool
	ReleaseWhenLocked   bool

	// Access
	SingleFactor        bool // ignore the fingerprint sensor even when present
	UnlockDuration      time.Duration
	VerificationTimeout time.Duration
	RefreshOnRematch    bool

	Tuning Tuning

	// Notifications
	ExpoEndpoint  string
	PushPerMinute int

	// Detection archive retention
	DetectionRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)

	TuningFile string
}

// Tuning holds the detector constants. It can be overridden from a YAML file
// so a site can be calibrated without rebuilding.
type Tuning struct {
	MotionInterval       time.Duration `yaml:"motion_interval"`
	MotionPixelDelta     int           `yaml:"motion_pixel_delta"`
	MotionPixelThreshold int           `yaml:"motion_pixel_threshold"`
	MotionCooldown       time.Duration `yaml:"motion_cooldown"`
	// MotionAnalysisWidth downscales frames before diffing; 0 keeps full size.
	MotionAnalysisWidth  int           `yaml:"motion_analysis_width"`
	FaceInterval         time.Duration `yaml:"face_interval"`
	FaceTolerance        float64       `yaml:"face_tolerance"`
	FingerprintInterval  time.Duration `yaml:"fingerprint_interval"`
	ScanTimeout          time.Duration `yaml:"scan_timeout"`
	LogCapacity          int           `yaml:"log_capacity"`
	RingCapacity         int           `yaml:"ring_capacity"`
	ClipFPS              int           `yaml:"clip_fps"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MotionInterval:       500 * time.Millisecond,
		MotionPixelDelta:     30,
		MotionPixelThreshold: 800,
		MotionCooldown:       10 * time.Second,
		FaceInterval:         2 * time.Second,
		FaceTolerance:        0.5,
		FingerprintInterval:  200 * time.Millisecond,
		ScanTimeout:          time.Second,
		LogCapacity:          50,
		RingCapacity:         100,
		ClipFPS:              10,
	}
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("CERBERUS_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	t := DefaultTuning()
	t.MotionInterval = getenvDuration("CERBERUS_MOTION_INTERVAL", t.MotionInterval)
	t.MotionPixelDelta = getenvInt("CERBERUS_MOTION_PIXEL_DELTA", t.MotionPixelDelta)
	t.MotionPixelThreshold = getenvInt("CERBERUS_MOTION_PIXEL_THRESHOLD", t.MotionPixelThreshold)
	t.MotionCooldown = getenvDuration("CERBERUS_MOTION_COOLDOWN", t.MotionCooldown)
	t.MotionAnalysisWidth = getenvInt("CERBERUS_MOTION_ANALYSIS_WIDTH", t.MotionAnalysisWidth)
	t.FaceInterval = getenvDuration("CERBERUS_FACE_INTERVAL", t.FaceInterval)
	t.FaceTolerance = getenvFloat("CERBERUS_FACE_TOLERANCE", t.FaceTolerance)
	t.LogCapacity = getenvInt("CERBERUS_LOG_CAPACITY", t.LogCapacity)
	t.RingCapacity = getenvInt("CERBERUS_RING_CAPACITY", t.RingCapacity)

	return Config{
		HTTPAddr: getenvDefault("CERBERUS_HTTP_ADDR", ":5000"),
		GRPCAddr: os.Getenv("CERBERUS_GRPC_ADDR"),

		CORSOrigins: splitCSV(getenvDefault("CERBERUS_CORS_ORIGINS", "*")),

		Env:         env,
		DBPath:      getenvDefault("CERBERUS_DB_PATH", "./data/cerberus.db"),
		EvidenceDir: getenvDefault("CERBERUS_EVIDENCE_DIR", "./static"),
		DatasetDir:  getenvDefault("CERBERUS_DATASET_DIR", "./dataset"),

		CameraURL:           strings.TrimSpace(os.Getenv("CERBERUS_CAMERA_URL")),
		CameraTimeout:       getenvDuration("CERBERUS_CAMERA_TIMEOUT", 3*time.Second),
		MatcherURL:          strings.TrimSpace(os.Getenv("CERBERUS_MATCHER_URL")),
		MatcherTimeout:      getenvDuration("CERBERUS_MATCHER_TIMEOUT", 10*time.Second),
		FingerprintPort:     strings.TrimSpace(os.Getenv("CERBERUS_FINGERPRINT_PORT")),
		FingerprintBaud:     getenvInt("CERBERUS_FINGERPRINT_BAUD", 57600),
		FingerprintPassword: uint32(getenvInt("CERBERUS_FINGERPRINT_PASSWORD", 0)),
		LockPin:             getenvDefault("CERBERUS_LOCK_PIN", "GPIO18"),
		LockedHigh:          getenvBool("CERBERUS_LOCKED_HIGH", true),
		ReleaseWhenLocked:   getenvBool("CERBERUS_RELEASE_WHEN_LOCKED", false),

		SingleFactor:        getenvBool("CERBERUS_SINGLE_FACTOR", false),
		UnlockDuration:      getenvDuration("CERBERUS_UNLOCK_DURATION", 5*time.Second),
		VerificationTimeout: getenvDuration("CERBERUS_VERIFICATION_TIMEOUT", 30*time.Second),
		RefreshOnRematch:    getenvBool("CERBERUS_REFRESH_ON_REMATCH", false),

		Tuning: t,

		ExpoEndpoint:  os.Getenv("CERBERUS_EXPO_ENDPOINT"),
		PushPerMinute: getenvInt("CERBERUS_PUSH_PER_MINUTE", 30),

		DetectionRetentionDays: getenvInt("CERBERUS_DETECTION_RETENTION_DAYS", 30),
		PruneIntervalHours:     getenvInt("CERBERUS_PRUNE_INTERVAL_HOURS", 6),

		TuningFile: strings.TrimSpace(os.Getenv("CERBERUS_TUNING_FILE")),
	}
}

// ApplyTuningFile overlays the non-zero values of the YAML file at path.
func (c *Config) ApplyTuningFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	var t Tuning
	if err := yaml.Unmarshal(b, &t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	c.Tuning = c.Tuning.merge(t)
	return nil
}

func (t Tuning) merge(o Tuning) Tuning {
	if o.MotionInterval > 0 {
		t.MotionInterval = o.MotionInterval
	}
	if o.MotionPixelDelta > 0 && o.MotionPixelDelta <= 255 {
		t.MotionPixelDelta = o.MotionPixelDelta
	}
	if o.MotionPixelThreshold > 0 {
		t.MotionPixelThreshold = o.MotionPixelThreshold
	}
	if o.MotionCooldown > 0 {
		t.MotionCooldown = o.MotionCooldown
	}
	if o.MotionAnalysisWidth > 0 {
		t.MotionAnalysisWidth = o.MotionAnalysisWidth
	}
	if o.FaceInterval > 0 {
		t.FaceInterval = o.FaceInterval
	}
	if o.FaceTolerance > 0 {
		t.FaceTolerance = o.FaceTolerance
	}
	if o.FingerprintInterval > 0 {
		t.FingerprintInterval = o.FingerprintInterval
	}
	if o.ScanTimeout > 0 {
		t.ScanTimeout = o.ScanTimeout
	}
	if o.LogCapacity > 0 {
		t.LogCapacity = o.LogCapacity
	}
	if o.RingCapacity > 0 {
		t.RingCapacity = o.RingCapacity
	}
	if o.ClipFPS > 0 {
		t.ClipFPS = o.ClipFPS
	}
	return t
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// getenvDuration accepts Go durations ("750ms") or plain seconds ("5").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
