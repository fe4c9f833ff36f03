package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/station-observations/internal/common"
	"github.com/i474232898/station-observations/internal/providers"
)

var validate = validator.New()

// AppConfig is resolved once at process start and not modified afterwards.
type AppConfig struct {
	SynopticToken   string
	SynopticBaseURL string `validate:"required,url"`
	UtahAQToken     string
	UtahAQBaseURL   string `validate:"required,url"`

	HTTPTimeout time.Duration `validate:"gt=0"`

	// CollectInterval controls how often the scheduler collects each series.
	CollectInterval time.Duration `validate:"gte=1m"`

	// Series to collect. Empty lists disable that source.
	SynopticStations []string `validate:"dive,required"`
	SynopticVars     []string
	UtahAQStations   []string `validate:"dive,required"`
	UtahAQDatatype   string   `validate:"required"`

	// Collection store retention.
	StoreMaxRows int           // max number of rows per series (0 = unlimited)
	StoreMaxAge  time.Duration // max age of rows (0 = unlimited)

	// ArchiveMaxMonths caps the months one archive request may span.
	ArchiveMaxMonths int `validate:"gte=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	Port string `validate:"required,numeric"`
}

// Load reads configuration from the environment (and a .env file when
// present) with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.SynopticToken = os.Getenv("SYNOPTIC_API_TOKEN")
	cfg.UtahAQToken = os.Getenv("UTAHAQ_API_TOKEN")
	cfg.SynopticBaseURL = getenvDefault("SYNOPTIC_BASE_URL", providers.SynopticBaseURL)
	cfg.UtahAQBaseURL = getenvDefault("UTAHAQ_BASE_URL", providers.UtahAQBaseURL)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.CollectInterval, err = getenvDuration("COLLECT_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	cfg.SynopticStations = common.SplitList(os.Getenv("SYNOPTIC_STATIONS"))
	cfg.SynopticVars = common.SplitList(os.Getenv("SYNOPTIC_VARS"))
	cfg.UtahAQStations = common.SplitList(os.Getenv("UTAHAQ_STATIONS"))
	cfg.UtahAQDatatype = getenvDefault("UTAHAQ_DATATYPE", "pm")

	cfg.StoreMaxRows = getenvInt("STORE_MAX_ROWS", 10000)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.ArchiveMaxMonths = getenvInt("ARCHIVE_MAX_MONTHS", 12)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
