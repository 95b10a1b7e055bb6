package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaOutageTopic string
	KafkaClaimTopic  string
	KafkaPayoutTopic string
	KafkaGroupID     string
	// BusEnabled is false when no brokers are configured; publishes are then
	// audited as local_only instead of hitting Kafka.
	BusEnabled bool

	DatabaseURL string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Outage monitor settings.
	MonitorInterval    time.Duration
	ResolutionInterval time.Duration
	ResolutionAfter    time.Duration
	PolicyRadiusMiles  float64

	// Threshold evaluator settings.
	WeatherLookback time.Duration

	// Fraud-check thresholds.
	FraudMaxClaims    int
	FraudClaimWindow  time.Duration
	FraudStormWindMPH float64

	// AI advisor configuration. Enabled defaults to true when an endpoint
	// and key are present.
	AdvisorEnabled  bool
	AdvisorEndpoint string
	AdvisorAPIKey   string
	AdvisorModel    string
	AdvisorTimeout  time.Duration

	// Payment gateway configuration.
	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	// Notifier configuration. Disabled when no URL is set.
	NotifierURL     string
	NotifierTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A local .env file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	monitorInterval, err := parseDuration("MONITOR_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	resolutionInterval, err := parseDuration("RESOLUTION_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}
	resolutionAfter, err := parseDuration("RESOLUTION_AFTER", "8h")
	if err != nil {
		return nil, err
	}
	weatherLookback, err := parseDuration("WEATHER_LOOKBACK", "6h")
	if err != nil {
		return nil, err
	}
	fraudWindow, err := parseDuration("FRAUD_CLAIM_WINDOW", "720h")
	if err != nil {
		return nil, err
	}
	advisorTimeout, err := parseDuration("ADVISOR_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	gatewayTimeout, err := parseDuration("GATEWAY_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	notifierTimeout, err := parseDuration("NOTIFIER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	radius, err := parseFloat("POLICY_RADIUS_MILES", 10)
	if err != nil {
		return nil, err
	}
	stormWind, err := parseFloat("FRAUD_STORM_WIND_MPH", 20)
	if err != nil {
		return nil, err
	}
	maxClaims, err := parseInt("FRAUD_MAX_CLAIMS", 5)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))

	advisorEndpoint := os.Getenv("ADVISOR_ENDPOINT")
	advisorKey := os.Getenv("ADVISOR_API_KEY")
	advisorEnabled := advisorEndpoint != "" && advisorKey != ""
	if v := os.Getenv("ADVISOR_ENABLED"); v != "" {
		advisorEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:     brokers,
		KafkaOutageTopic: envOrDefault("KAFKA_OUTAGE_TOPIC", "outage-events"),
		KafkaClaimTopic:  envOrDefault("KAFKA_CLAIM_TOPIC", "claim-decisions"),
		KafkaPayoutTopic: envOrDefault("KAFKA_PAYOUT_TOPIC", "payout-events"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "parametric-claims"),
		BusEnabled:       len(brokers) > 0,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MonitorInterval:    monitorInterval,
		ResolutionInterval: resolutionInterval,
		ResolutionAfter:    resolutionAfter,
		PolicyRadiusMiles:  radius,

		WeatherLookback: weatherLookback,

		FraudMaxClaims:    maxClaims,
		FraudClaimWindow:  fraudWindow,
		FraudStormWindMPH: stormWind,

		AdvisorEnabled:  advisorEnabled,
		AdvisorEndpoint: advisorEndpoint,
		AdvisorAPIKey:   advisorKey,
		AdvisorModel:    envOrDefault("ADVISOR_MODEL", "gpt-4"),
		AdvisorTimeout:  advisorTimeout,

		GatewayURL:     os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		GatewayTimeout: gatewayTimeout,

		NotifierURL:     os.Getenv("NOTIFIER_URL"),
		NotifierTimeout: notifierTimeout,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.AdvisorEnabled && (cfg.AdvisorEndpoint == "" || cfg.AdvisorAPIKey == "") {
		return nil, errors.New("ADVISOR_ENABLED is true but ADVISOR_ENDPOINT or ADVISOR_API_KEY is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}
