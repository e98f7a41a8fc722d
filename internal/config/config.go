package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"

	"github.com/i474232898/nwp-ensemble/internal/nwp"
)

// geocodeBoxMargin is the half-width, in degrees, of the bounding box built
// around a geocoded point when no explicit region is configured.
const geocodeBoxMargin = 0.15

var validate = validator.New()

// AppConfig holds one invocation's configuration. It is loaded from the
// environment with sensible defaults and then overridden by CLI flags.
type AppConfig struct {
	// Output directory for downloaded GRIB2 files.
	OutDir string `validate:"required"`

	// Retrieval request shape.
	Providers []nwp.Provider `validate:"required,min=1"`
	Variables []nwp.Variable `validate:"required,min=1"`
	Hours     int            `validate:"gte=0"`
	Step      int            `validate:"gte=0"` // 0 = provider default
	Region    nwp.Region

	// Download behaviour.
	Workers      int `validate:"gte=1"`
	MaxRetries   int `validate:"gte=1"`
	SkipDownload bool
	SkipExisting bool

	// Serve mode.
	Serve bool
	Port  string

	// Summary store retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		OutDir:          getenvDefault("OUT_DIR", "data"),
		Variables:       nwp.DefaultVariables,
		Hours:           getenvInt("FORECAST_HOURS", 72),
		Step:            getenvInt("FORECAST_STEP", 0),
		Workers:         getenvInt("DOWNLOAD_WORKERS", nwp.DefaultWorkers),
		MaxRetries:      getenvInt("MAX_RETRIES", 3),
		Port:            getenvDefault("PORT", "8080"),
		StoreMaxHistory: getenvInt("STORE_MAX_HISTORY", 96),
	}

	providers, err := nwp.ParseProviders(os.Getenv("PROVIDERS"))
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	maxAgeStr := getenvDefault("STORE_MAX_AGE", "24h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_AGE: %w", err)
	}
	cfg.StoreMaxAge = maxAge

	region, err := loadRegion()
	if err != nil {
		return nil, err
	}
	cfg.Region = region

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks the configuration; callers run it again after applying
// flag overrides.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validate.Struct(c.Region); err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}
	return nil
}

// loadRegion builds the bounding box. An explicit box from the environment
// wins; otherwise a configured place name is geocoded and a small box drawn
// around it; otherwise the default region (Halifax Harbour) is used.
func loadRegion() (nwp.Region, error) {
	defaultRegion := nwp.Region{LatMin: 44.5, LatMax: 44.8, LonMin: -63.6, LonMax: -63.4}

	if os.Getenv("LAT_MIN") != "" {
		latMin, err := getenvFloat("LAT_MIN")
		if err != nil {
			return nwp.Region{}, err
		}
		latMax, err := getenvFloat("LAT_MAX")
		if err != nil {
			return nwp.Region{}, err
		}
		lonMin, err := getenvFloat("LON_MIN")
		if err != nil {
			return nwp.Region{}, err
		}
		lonMax, err := getenvFloat("LON_MAX")
		if err != nil {
			return nwp.Region{}, err
		}
		return nwp.Region{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}, nil
	}

	city := os.Getenv("REGION_CITY")
	apiKey := os.Getenv("GEOCODER_API_KEY")
	if city != "" && apiKey != "" {
		geocoder.ApiKey = apiKey
		location, err := geocoder.Geocoding(geocoder.Address{
			City:    city,
			Country: os.Getenv("REGION_COUNTRY"),
		})
		if err != nil {
			return nwp.Region{}, fmt.Errorf("geocoding %q: %w", city, err)
		}
		return nwp.Region{
			LatMin: location.Latitude - geocodeBoxMargin,
			LatMax: location.Latitude + geocodeBoxMargin,
			LonMin: location.Longitude - geocodeBoxMargin,
			LonMax: location.Longitude + geocodeBoxMargin,
		}, nil
	}

	return defaultRegion, nil
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

func getenvFloat(key string) (float64, error) {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
