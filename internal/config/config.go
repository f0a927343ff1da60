package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "RepsLend"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultProofTimeout    = 30 * time.Second
	defaultOracleAttempts  = 3
	defaultOracleBackoff   = 500 * time.Millisecond
	defaultAutoApproveMax  = int64(25_000)
	defaultReviewSLA       = 48 * time.Hour
	defaultDefaultAfter    = 3
	defaultSettlementWait  = 15 * time.Second
	proofTimeoutEnvVar     = "PROOF_TIMEOUT"
	oracleAttemptsEnvVar   = "ORACLE_MAX_ATTEMPTS"
	oracleBackoffEnvVar    = "ORACLE_BACKOFF"
	autoApproveMaxEnvVar   = "AUTO_APPROVE_MAX_AMOUNT"
	reviewSLAEnvVar        = "REVIEW_SLA"
	defaultAfterEnvVar     = "DEFAULT_AFTER_MISSED"
	settlementWaitEnvVar   = "SETTLEMENT_TIMEOUT"
	multiIssuerEnvVar      = "ALLOW_MULTI_ISSUER"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// ProofSecret keys the HMAC commitment binding a proof to its identity
	// and product. Must be stable across instances verifying each other's proofs.
	ProofSecret  string
	ProofTimeout time.Duration

	// Oracle retry policy for retryable verification failures.
	OracleMaxAttempts int
	OracleBackoff     time.Duration

	// OracleIssuerKeys lists trusted issuer signing keys as comma-separated
	// "issuer=hexpubkey" pairs. Dev mode adds a deterministic demo issuer.
	OracleIssuerKeys string

	// Lending policy defaults; products may override auto-approval and SLA.
	AutoApproveMaxAmount int64
	ReviewSLA            time.Duration
	DefaultAfterMissed   int
	SettlementTimeout    time.Duration

	// AllowMultiIssuer permits simultaneously-valid credentials of the same
	// type from different issuers (multi-issuer corroboration).
	AllowMultiIssuer bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               getEnv("APP_ENV", defaultAppEnv),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		ProofSecret:          os.Getenv("PROOF_SECRET"),
		OracleIssuerKeys:     os.Getenv("ORACLE_ISSUER_KEYS"),
		ShutdownPeriod:       defaultShutdownDelay,
		IdempotencyTTL:       defaultIdempotencyTTL,
		ProofTimeout:         defaultProofTimeout,
		OracleMaxAttempts:    defaultOracleAttempts,
		OracleBackoff:        defaultOracleBackoff,
		AutoApproveMaxAmount: defaultAutoApproveMax,
		ReviewSLA:            defaultReviewSLA,
		DefaultAfterMissed:   defaultDefaultAfter,
		SettlementTimeout:    defaultSettlementWait,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	for _, dur := range []struct {
		env  string
		dest *time.Duration
	}{
		{proofTimeoutEnvVar, &cfg.ProofTimeout},
		{oracleBackoffEnvVar, &cfg.OracleBackoff},
		{reviewSLAEnvVar, &cfg.ReviewSLA},
		{settlementWaitEnvVar, &cfg.SettlementTimeout},
	} {
		if v := os.Getenv(dur.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", dur.env, err)
			}
			*dur.dest = d
		}
	}

	if v := os.Getenv(oracleAttemptsEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid %s: %q", oracleAttemptsEnvVar, v)
		}
		cfg.OracleMaxAttempts = n
	}

	if v := os.Getenv(defaultAfterEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid %s: %q", defaultAfterEnvVar, v)
		}
		cfg.DefaultAfterMissed = n
	}

	if v := os.Getenv(autoApproveMaxEnvVar); v != "" {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil || amount < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", autoApproveMaxEnvVar, v)
		}
		cfg.AutoApproveMaxAmount = amount
	}

	if v := os.Getenv(multiIssuerEnvVar); v != "" {
		allowed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %q", multiIssuerEnvVar, v)
		}
		cfg.AllowMultiIssuer = allowed
	}

	if cfg.ProofSecret == "" {
		if !isDev(cfg.AppEnv) {
			return Config{}, fmt.Errorf("PROOF_SECRET must be set")
		}
		cfg.ProofSecret = "dev-proof-secret"
	}

	if !isDev(cfg.AppEnv) {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// Dev reports whether the application runs in a development environment.
func (c Config) Dev() bool {
	return isDev(c.AppEnv)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "development", "dev":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
