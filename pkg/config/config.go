// Package config loads archgate settings from the environment and from the
// gate configuration file.
package config

import (
	"os"
	"strconv"
)

// Config holds process configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	ConstraintsPath string
	GateConfigPath  string

	// ACRStore is "sqlite", "postgres" or "memory".
	ACRStore    string
	SQLitePath  string
	DatabaseURL string

	// ArtifactStore is "fs", "s3", "gcs" or "memory".
	ArtifactStore    string
	ArtifactDir      string
	ArtifactBucket   string
	ArtifactRegion   string
	ArtifactEndpoint string
	ArtifactPrefix   string

	RedisAddr         string
	NATSURL           string
	NATSSubjectPrefix string

	JWTSecret string
	RateLimit float64
	RateBurst int

	OTLPEndpoint string

	// ServerURL and APIToken point ACR commands at a remote server.
	ServerURL string
	APIToken  string
}

// Load loads configuration from ARCHGATE_* environment variables.
func Load() *Config {
	return &Config{
		Port:      env("ARCHGATE_PORT", "8080"),
		LogLevel:  env("ARCHGATE_LOG_LEVEL", "INFO"),
		LogFormat: env("ARCHGATE_LOG_FORMAT", "text"),

		ConstraintsPath: env("ARCHGATE_CONSTRAINTS", ".archgate/constraints.json"),
		GateConfigPath:  env("ARCHGATE_GATE_CONFIG", ".archgate/gate.yaml"),

		ACRStore:    env("ARCHGATE_ACR_STORE", "sqlite"),
		SQLitePath:  env("ARCHGATE_SQLITE_PATH", ".archgate/acr.db"),
		DatabaseURL: os.Getenv("ARCHGATE_DATABASE_URL"),

		ArtifactStore:    env("ARCHGATE_ARTIFACT_STORE", "fs"),
		ArtifactDir:      env("ARCHGATE_ARTIFACT_DIR", ".archgate"),
		ArtifactBucket:   os.Getenv("ARCHGATE_ARTIFACT_BUCKET"),
		ArtifactRegion:   os.Getenv("ARCHGATE_ARTIFACT_REGION"),
		ArtifactEndpoint: os.Getenv("ARCHGATE_ARTIFACT_ENDPOINT"),
		ArtifactPrefix:   os.Getenv("ARCHGATE_ARTIFACT_PREFIX"),

		RedisAddr:         os.Getenv("ARCHGATE_REDIS_ADDR"),
		NATSURL:           os.Getenv("ARCHGATE_NATS_URL"),
		NATSSubjectPrefix: env("ARCHGATE_NATS_SUBJECT_PREFIX", "archgate.acr"),

		JWTSecret: os.Getenv("ARCHGATE_JWT_SECRET"),
		RateLimit: envFloat("ARCHGATE_RATE_LIMIT", 10),
		RateBurst: envInt("ARCHGATE_RATE_BURST", 20),

		OTLPEndpoint: os.Getenv("ARCHGATE_OTLP_ENDPOINT"),

		ServerURL: os.Getenv("ARCHGATE_SERVER"),
		APIToken:  os.Getenv("ARCHGATE_TOKEN"),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envFloat falls back to def on unset or unparsable values.
func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
