package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	Endpoint   string
	PathStyle  bool
}

type Twitter struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
	UploadURL    string
	PollInterval time.Duration
	MaxPolls     int
}

type Instagram struct {
	ClientSecret string
	GraphURL     string
	RefreshURL   string
}

type Facebook struct {
	GraphURL string
}

type Dispatcher struct {
	TickInterval   time.Duration
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RatePerSecond  float64
}

type Logging struct {
	Level  string
	Format string
	Output string
}

type Config struct {
	Instagram          Instagram
	Twitter            Twitter
	Facebook           Facebook
	Dispatcher         Dispatcher
	Logging            Logging
	StorageDriver      string
	R2                 R2
	PostgresURI        string
	RedisURI           string
	PublicBaseURL      string
	MediaDir           string
	ListenAddr         string
	SecretKey          string
	CookieName         string
	TokenEncryptionKey string
	HTTPTimeout        time.Duration
	MaxImageSize       int64
}

func LoadConfig() *Config {
	return &Config{
		Instagram: Instagram{
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			GraphURL:     getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0"),
			RefreshURL:   getEnv("INSTAGRAM_REFRESH_URL", "https://graph.instagram.com/refresh_access_token"),
		},
		Twitter: Twitter{
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
			TokenURL:     getEnv("TWITTER_TOKEN_URL", "https://api.x.com/2/oauth2/token"),
			APIBaseURL:   getEnv("TWITTER_API_URL", "https://api.x.com/2"),
			UploadURL:    getEnv("TWITTER_UPLOAD_URL", "https://api.x.com/2/media/upload"),
			PollInterval: getEnvDuration("TWITTER_STATUS_POLL_INTERVAL", 2*time.Second),
			MaxPolls:     getEnvInt("TWITTER_STATUS_MAX_POLLS", 30),
		},
		Facebook: Facebook{
			GraphURL: getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v21.0"),
		},
		Dispatcher: Dispatcher{
			TickInterval:   getEnvDuration("TICK_INTERVAL", 60*time.Second),
			Workers:        getEnvInt("WORKERS_PER_PLATFORM", 4),
			MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 30*time.Second),
			RetryMaxDelay:  getEnvDuration("RETRY_MAX_DELAY", 15*time.Minute),
			RatePerSecond:  getEnvFloat("PUBLISH_RATE_PER_SECOND", 5),
		},
		Logging: Logging{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		StorageDriver: getEnv("STORAGE_DRIVER", "r2"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			Endpoint:   getEnv("R2_ENDPOINT", ""),
			PathStyle:  getEnv("R2_PATH_STYLE", "") == "true",
		},
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", ""),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		MediaDir:           getEnv("MEDIA_DIR", os.TempDir()),
		ListenAddr:         getEnv("LISTEN_ADDR", ":3000"),
		SecretKey:          getEnv("SECRET_KEY", ""),
		CookieName:         getEnv("COOKIE_NAME", "postflow_session"),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		MaxImageSize:       int64(getEnvInt("MAX_IMAGE_SIZE", 20*1024*1024)),
	}
}

// Validate checks the combinations LoadConfig cannot default.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "memory":
	case "r2":
		if c.R2.BucketName == "" {
			return errors.New("R2_BUCKET_NAME is required for the r2 storage driver")
		}
		if c.R2.AccountID == "" && c.R2.Endpoint == "" {
			return errors.New("R2_ACCOUNT_ID or R2_ENDPOINT is required for the r2 storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.Dispatcher.TickInterval <= 0 {
		return errors.New("tick interval must be greater than 0")
	}
	if c.Dispatcher.Workers <= 0 {
		return errors.New("workers per platform must be greater than 0")
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		return errors.New("max attempts must be greater than 0")
	}
	// A longer base delay would skip the tick right after a failure.
	if c.Dispatcher.RetryBaseDelay > c.Dispatcher.TickInterval {
		return fmt.Errorf("retry base delay %s exceeds tick interval %s", c.Dispatcher.RetryBaseDelay, c.Dispatcher.TickInterval)
	}
	if c.MaxImageSize <= 0 {
		return errors.New("max image size must be greater than 0")
	}
	if c.Twitter.MaxPolls <= 0 {
		return errors.New("twitter max polls must be greater than 0")
	}

	switch len(c.TokenEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("token encryption key must be 16, 24 or 32 bytes, got %d", len(c.TokenEncryptionKey))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
