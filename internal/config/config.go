package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

const (
	DefaultGeometryURL = "https://statbel.fgov.be/sites/default/files/files/opendata/Statistische%20sectoren/sh_statbel_statistical_sectors_31370_20200101.geojson.zip"
	DefaultCasesURL    = "https://epistat.sciensano.be/Data/COVID19BE_CASES_MUNI.json"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	GeometryURL string
	CasesURL    string

	// RefreshGeometry and RefreshCases re-download the sources; when false the
	// local caches under DataDir are used.
	RefreshGeometry bool
	RefreshCases    bool

	GeometryCodeField   string
	GeometryRegionField string

	DataDir   string
	OutputDir string
	FramesDir string
	XLSXPath  string

	UseSmoothed bool
	FrameRate   int
	FrameDPI    int
	MaxFrames   int
	StrictJoin  bool

	FetchTimeout    time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka publishing of the smoothed grid; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FETCH_TIMEOUT", "60s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	refreshGeometry, err := parseBool("REFRESH_GEOMETRY", true)
	if err != nil {
		return nil, err
	}
	refreshCases, err := parseBool("REFRESH_CASES", true)
	if err != nil {
		return nil, err
	}
	useSmoothed, err := parseBool("USE_SMOOTHED", true)
	if err != nil {
		return nil, err
	}
	strictJoin, err := parseBool("STRICT_JOIN", false)
	if err != nil {
		return nil, err
	}

	frameRate, err := parseInt("FRAME_RATE", 5, 1, 100)
	if err != nil {
		return nil, err
	}
	frameDPI, err := parseInt("FRAME_DPI", 100, 10, 600)
	if err != nil {
		return nil, err
	}
	maxFrames, err := parseInt("MAX_FRAMES", 0, 0, 1<<20)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		GeometryURL:         sharedcfg.EnvOrDefault("GEOMETRY_URL", DefaultGeometryURL),
		CasesURL:            sharedcfg.EnvOrDefault("CASES_URL", DefaultCasesURL),
		RefreshGeometry:     refreshGeometry,
		RefreshCases:        refreshCases,
		GeometryCodeField:   sharedcfg.EnvOrDefault("GEOMETRY_CODE_FIELD", "cd_munty_refnis"),
		GeometryRegionField: sharedcfg.EnvOrDefault("GEOMETRY_REGION_FIELD", "tx_rgn_descr_fr"),
		DataDir:             sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		OutputDir:           sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		FramesDir:           os.Getenv("FRAMES_DIR"),
		XLSXPath:            os.Getenv("XLSX_PATH"),
		UseSmoothed:         useSmoothed,
		FrameRate:           frameRate,
		FrameDPI:            frameDPI,
		MaxFrames:           maxFrames,
		StrictJoin:          strictJoin,
		FetchTimeout:        fetchTimeout,
		HTTPAddr:            os.Getenv("HTTP_ADDR"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		KafkaBrokers:        brokers,
		KafkaTopic:          sharedcfg.EnvOrDefault("KAFKA_TOPIC", "covid-muni-grid"),
	}

	if cfg.GeometryCodeField == cfg.GeometryRegionField {
		return nil, errors.New("GEOMETRY_CODE_FIELD and GEOMETRY_REGION_FIELD must differ")
	}
	if cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

// KafkaEnabled reports whether grid publishing is configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}
