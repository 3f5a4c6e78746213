// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every knob the hearth server reads at startup. All fields are
// sourced from environment variables, with defaults suitable for local
// development.
type Config struct {
	// HTTP listen address for the API and websocket endpoints.
	ListenAddr string `env:"HEARTH_LISTEN_ADDR" envDefault:":8000"`

	// Path to the sqlite database file. Empty means a temporary file.
	DBPath string `env:"HEARTH_DB_PATH" envDefault:"hearth.db"`

	// External broker (Adafruit-IO compatible) credentials.
	BrokerUsername string `env:"AIO_USERNAME"`
	BrokerKey      string `env:"AIO_KEY"`
	BrokerBaseURL  string `env:"AIO_BASE_URL" envDefault:"https://io.adafruit.com/api/v2"`

	// Optional MQTT endpoint for the live publish path. When empty, writes
	// go through the REST API instead.
	MQTTBrokerURL string `env:"AIO_MQTT_URL"`

	// Inference sidecar serving the sentence and face encoders.
	EncoderBaseURL string `env:"HEARTH_ENCODER_URL" envDefault:"http://localhost:9090"`

	// Face verification thresholds.
	OptimalThreshold    float64 `env:"OPTIMAL_THRESHOLD" envDefault:"1.2"`
	ConfidenceThreshold float64 `env:"CONFIDENCE_THRESHOLD" envDefault:"0.6"`

	// Log level for all hearth packages ("off", "debug", "info", ...).
	LogLevel string `env:"HEARTH_LOG_LEVEL" envDefault:"off"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse environment: %v", err)
	}
	return cfg, nil
}
