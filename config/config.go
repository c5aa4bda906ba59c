package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP struct {
		Port string `env:"HTTP_PORT" envDefault:"5250"`

		// Comma separated list of allowed origins for the map client
		AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"database/housefinder.db"`
	}

	Matcher struct {
		// Endpoint of the semantic search collaborator. Empty disables AI search.
		URL     string        `env:"MATCHER_URL"`
		APIKey  string        `env:"MATCHER_API_KEY"`
		Timeout time.Duration `env:"MATCHER_TIMEOUT" envDefault:"30s"`

		// Requests per second allowed towards the matcher
		RateLimit float64 `env:"MATCHER_RATE_LIMIT" envDefault:"2"`
	}

	Geocoder struct {
		URL          string  `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org/search"`
		CountryCodes string  `env:"GEOCODER_COUNTRY_CODES" envDefault:"cn"`
		CacheDir     string  `env:"GEOCODER_CACHE_DIR"`
		RateLimit    float64 `env:"GEOCODER_RATE_LIMIT" envDefault:"1"`
	}

	Search struct {
		// Queue depth for in-flight external searches
		QueueSize int `env:"SEARCH_QUEUE_SIZE" envDefault:"64"`

		// Number of workers resolving external searches
		Workers int `env:"SEARCH_WORKERS" envDefault:"4"`

		// Idle sessions are evicted after this duration
		SessionTTL time.Duration `env:"SEARCH_SESSION_TTL" envDefault:"2h"`

		// How often the spatial index is rebuilt from the store. Zero disables it.
		RefreshInterval time.Duration `env:"SEARCH_REFRESH_INTERVAL" envDefault:"10m"`

		// Optional JSON file overriding the built-in region hierarchy
		RegionsFile string `env:"SEARCH_REGIONS_FILE"`
	}

	// Import configures batch loading of listings into the store
	Import struct {
		// Maximum number of properties per transaction
		MaxBatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"100"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"IMPORT_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"IMPORT_RETRY_DELAY" envDefault:"5"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}
}

// LoadConfig reads an optional .env file and parses the environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
