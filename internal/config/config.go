package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the service.
type Config struct {
	MQTT     MQTTConfig
	Whisper  WhisperConfig
	Pipeline PipelineConfig
	Store    StoreConfig
	Push     PushConfig
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
}

type WhisperConfig struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

type PipelineConfig struct {
	Workers           int
	QueueDepth        int
	TranscribeTimeout time.Duration
	MaxFragmentLen    int
	DetectionWindow   int
}

type StoreConfig struct {
	Path string
}

type PushConfig struct {
	ListenAddr string
}

// Load resolves configuration from environment variables and defaults.
func Load() Config {
	cfg := Config{
		MQTT: MQTTConfig{
			BrokerURL: envOrDefault("TELLERDESK_MQTT_URL", "tcp://localhost:1883"),
			ClientID:  envOrDefault("TELLERDESK_MQTT_CLIENT_ID", "tellerdesk"),
		},
		Whisper: WhisperConfig{
			BaseURL:  envOrDefault("TELLERDESK_WHISPER_URL", "http://localhost:9000"),
			Language: envOrDefault("TELLERDESK_WHISPER_LANGUAGE", "id"),
			Timeout:  envOrDefaultDuration("TELLERDESK_WHISPER_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:           envOrDefaultInt("TELLERDESK_PIPELINE_WORKERS", 2),
			QueueDepth:        envOrDefaultInt("TELLERDESK_PIPELINE_QUEUE_DEPTH", 64),
			TranscribeTimeout: envOrDefaultDuration("TELLERDESK_TRANSCRIBE_TIMEOUT", 30*time.Second),
			MaxFragmentLen:    envOrDefaultInt("TELLERDESK_FRAGMENT_MAX_LEN", 255),
			DetectionWindow:   envOrDefaultInt("TELLERDESK_DETECTION_WINDOW", 800),
		},
		Store: StoreConfig{
			Path: envOrDefault("TELLERDESK_DB_PATH", "tellerdesk.sqlite"),
		},
		Push: PushConfig{
			ListenAddr: envOrDefault("TELLERDESK_LISTEN_ADDR", ":8090"),
		},
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 2
	}
	if cfg.Pipeline.QueueDepth <= 0 {
		cfg.Pipeline.QueueDepth = 64
	}
	if cfg.Pipeline.MaxFragmentLen <= 0 {
		cfg.Pipeline.MaxFragmentLen = 255
	}
	if cfg.Pipeline.DetectionWindow <= 0 {
		cfg.Pipeline.DetectionWindow = 800
	}

	return cfg
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
