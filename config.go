package reqflow

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds environment driven defaults for a façade.
type Config struct {
	BaseURL            string        `env:"REQFLOW_BASE_URL"`
	Timeout            time.Duration `env:"REQFLOW_TIMEOUT"              envDefault:"30s"`
	MaxRetries         int           `env:"REQFLOW_MAX_RETRIES"          envDefault:"0"`
	BackendSuccessCode string        `env:"REQFLOW_BACKEND_SUCCESS_CODE" envDefault:"0"`
	RequestIDHeader    string        `env:"REQFLOW_REQUEST_ID_HEADER"    envDefault:"X-Request-Id"`
	LogLevel           string        `env:"REQFLOW_LOG_LEVEL"            envDefault:"info"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse reqflow env: %w", err)
	}
	return cfg, nil
}

// Options converts cfg into façade options. The envelope success predicate
// and transform are included so json responses are classified by their code.
func (c Config) Options() []Option {
	opts := []Option{
		WithTimeout(c.Timeout),
		WithRequestIDHeader(c.RequestIDHeader),
		WithBackendSuccess(EnvelopeSuccess(c.BackendSuccessCode)),
		WithTransform(EnvelopeTransform),
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(c.MaxRetries))
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().
		Level(ParseLogLevel(c.LogLevel))
	opts = append(opts, WithLogger(NewZerologLogger(logger)))

	return opts
}
