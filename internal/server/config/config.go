// Package config handles configuration for the server component,
// including defaults, JSON overlay, environment secrets and command-line
// flags, plus the hot-reloaded catalog snapshot.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the LearnKeeper server.
//
// An empty DatabaseDSN runs the server on the in-memory store, an empty
// SMTPAddr keeps outbound mail in a local outbox and an empty RedisAddr
// disables the breach range cache.
type Config struct {
	EndpointAddrGRPC string
	EndpointAddrOps  string
	DatabaseDSN      string

	MasterSecret string
	Pepper       string
	JWTSecret    string

	AEAD           string
	IndexDigest    string
	SaltLength     int
	KDFIterations  uint32
	KDFMemoryKiB   uint32
	KDFParallelism uint8

	TokenValidityDuration time.Duration
	MFAValidityDuration   time.Duration
	MFAMaxAttempts        int
	SweepInterval         time.Duration

	PasswordMinLength int
	PasswordMaxLength int
	BreachCheck       bool
	BreachURL         string
	BreachDigest      string
	BreachTimeout     time.Duration
	RedisAddr         string
	BreachCacheTTL    time.Duration
	BlocklistSource   string

	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3BaseEndpoint string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	CatalogFile    string
	ReloadInterval time.Duration

	TxMaxAttempts int

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secrets are insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrOps = ":8080"
	c.DatabaseDSN = ""

	c.MasterSecret = "dev-master-secret"
	c.Pepper = "dev-pepper"
	c.JWTSecret = "dev-jwt-secret-change-me"

	c.AEAD = "aes-256-gcm"
	c.IndexDigest = "sha256"
	c.SaltLength = 16
	c.KDFIterations = 1
	c.KDFMemoryKiB = 19 * 1024
	c.KDFParallelism = 2

	c.TokenValidityDuration = 24 * time.Hour
	c.MFAValidityDuration = 30 * time.Minute
	c.MFAMaxAttempts = 5
	c.SweepInterval = 10 * time.Minute

	c.PasswordMinLength = 8
	c.PasswordMaxLength = 128
	c.BreachCheck = true
	c.BreachURL = "https://api.pwnedpasswords.com/range/"
	c.BreachDigest = "sha1"
	c.BreachTimeout = 5 * time.Second
	c.RedisAddr = ""
	c.BreachCacheTTL = 24 * time.Hour
	c.BlocklistSource = ""

	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""

	c.SMTPAddr = ""
	c.MailFrom = "noreply@learnkeeper.local"

	c.CatalogFile = ""
	c.ReloadInterval = time.Minute

	c.TxMaxAttempts = 5

	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Environment variables that override secrets.
const (
	EnvMasterSecret = "LEARNKEEPER_MASTER_SECRET"
	EnvPepper       = "LEARNKEEPER_PEPPER"
	EnvJWTSecret    = "LEARNKEEPER_JWT_SECRET"
)

func parseEnv(config *Config) {
	if v, ok := os.LookupEnv(EnvMasterSecret); ok && v != "" {
		config.MasterSecret = v
	}
	if v, ok := os.LookupEnv(EnvPepper); ok && v != "" {
		config.Pepper = v
	}
	if v, ok := os.LookupEnv(EnvJWTSecret); ok && v != "" {
		config.JWTSecret = v
	}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
