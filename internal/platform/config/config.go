// Package config builds the process configuration from environment variables
// so main stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures every riftgate runtime setting. Secrets default to
// development values and must be overridden in production.
type Config struct {
	Addr string

	BinderSecret      string
	AttestationKey    string
	SessionSigningKey string
	SessionIssuer     string
	SessionAudience   string
	SessionTTL        time.Duration

	NoiseBits           uint
	NoiseTolerance      float64
	NegligibleThreshold float64

	FullAccessScore     float64
	RestrictedScore     float64
	MaxEntropyDeviation float64
	MaxThreatLevel      float64

	MonitorInterval time.Duration
	ConfirmTimeout  time.Duration

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers string
	KafkaTopic   string
}

// FromEnv reads RIFTGATE_* variables, falling back to development defaults.
func FromEnv() Config {
	return Config{
		Addr: envString("RIFTGATE_ADDR", ":8080"),

		BinderSecret:      envString("RIFTGATE_BINDER_SECRET", "dev-binder-secret-change-in-prod"),
		AttestationKey:    envString("RIFTGATE_ATTESTATION_KEY", "dev-attestation-key-change-in-prod"),
		SessionSigningKey: envString("RIFTGATE_SESSION_SIGNING_KEY", "dev-session-key-change-in-prod00"),
		SessionIssuer:     envString("RIFTGATE_SESSION_ISSUER", "riftgate"),
		SessionAudience:   envString("RIFTGATE_SESSION_AUDIENCE", "riftgate-clients"),
		SessionTTL:        envDuration("RIFTGATE_SESSION_TTL", 15*time.Minute),

		NoiseBits:           uint(envInt("RIFTGATE_NOISE_BITS", 6)),
		NoiseTolerance:      envFloat("RIFTGATE_NOISE_TOLERANCE", 0.25),
		NegligibleThreshold: envFloat("RIFTGATE_NEGLIGIBLE_THRESHOLD", 0.01),

		FullAccessScore:     envFloat("RIFTGATE_FULL_ACCESS_SCORE", 95.0),
		RestrictedScore:     envFloat("RIFTGATE_RESTRICTED_SCORE", 92.5),
		MaxEntropyDeviation: envFloat("RIFTGATE_MAX_ENTROPY_DEVIATION", 1.5),
		MaxThreatLevel:      envFloat("RIFTGATE_MAX_THREAT_LEVEL", 7.0),

		MonitorInterval: envDuration("RIFTGATE_MONITOR_INTERVAL", 30*time.Second),
		ConfirmTimeout:  envDuration("RIFTGATE_CONFIRM_TIMEOUT", 30*time.Second),

		PostgresDSN:  os.Getenv("RIFTGATE_POSTGRES_DSN"),
		RedisURL:     os.Getenv("RIFTGATE_REDIS_URL"),
		KafkaBrokers: os.Getenv("RIFTGATE_KAFKA_BROKERS"),
		KafkaTopic:   envString("RIFTGATE_KAFKA_TOPIC", "riftgate.audit.records"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
