package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/learnkeeper/internal/flagx"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
)

// JsonConfig is the DTO read from the JSON config file. Durations accept
// both strings such as "30m" and integer nanoseconds. Pointer fields
// distinguish "absent" from the zero value so a partial file only
// overrides what it names.
type JsonConfig struct {
	EndpointAddrGRPC *string `json:"endpoint_addr_grpc"`
	EndpointAddrOps  *string `json:"endpoint_addr_ops"`
	DatabaseDSN      *string `json:"database_dsn"`

	MasterSecret *string `json:"master_secret"`
	Pepper       *string `json:"pepper"`
	JWTSecret    *string `json:"jwt_secret"`

	AEAD           *string `json:"aead"`
	IndexDigest    *string `json:"index_digest"`
	SaltLength     *int    `json:"salt_length"`
	KDFIterations  *uint32 `json:"kdf_iterations"`
	KDFMemoryKiB   *uint32 `json:"kdf_memory_kib"`
	KDFParallelism *uint8  `json:"kdf_parallelism"`

	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	MFAValidityDuration   *timex.Duration `json:"mfa_validity_duration"`
	SweepInterval         *timex.Duration `json:"sweep_interval"`

	PasswordMinLength *int            `json:"password_min_length"`
	PasswordMaxLength *int            `json:"password_max_length"`
	BreachCheck       *bool           `json:"breach_check"`
	BreachURL         *string         `json:"breach_url"`
	BreachDigest      *string         `json:"breach_digest"`
	BreachTimeout     *timex.Duration `json:"breach_timeout"`
	RedisAddr         *string         `json:"redis_addr"`
	BreachCacheTTL    *timex.Duration `json:"breach_cache_ttl"`
	BlocklistSource   *string         `json:"blocklist_source"`

	S3AccessKey    *string `json:"s3_access_key"`
	S3SecretKey    *string `json:"s3_secret_key"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`

	SMTPAddr     *string `json:"smtp_addr"`
	SMTPUsername *string `json:"smtp_username"`
	SMTPPassword *string `json:"smtp_password"`
	MailFrom     *string `json:"mail_from"`

	CatalogFile    *string         `json:"catalog_file"`
	ReloadInterval *timex.Duration `json:"reload_interval"`

	TxMaxAttempts  *int `json:"tx_max_attempts"`
	MFAMaxAttempts *int `json:"mfa_max_attempts"`

	LogLevel  *string `json:"log_level"`
	LogFormat *string `json:"log_format"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag into config. Without the flag nothing is loaded. An
// unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	set(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&config.EndpointAddrOps, c.EndpointAddrOps)
	set(&config.DatabaseDSN, c.DatabaseDSN)

	set(&config.MasterSecret, c.MasterSecret)
	set(&config.Pepper, c.Pepper)
	set(&config.JWTSecret, c.JWTSecret)

	set(&config.AEAD, c.AEAD)
	set(&config.IndexDigest, c.IndexDigest)
	set(&config.SaltLength, c.SaltLength)
	set(&config.KDFIterations, c.KDFIterations)
	set(&config.KDFMemoryKiB, c.KDFMemoryKiB)
	set(&config.KDFParallelism, c.KDFParallelism)

	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.MFAValidityDuration != nil {
		config.MFAValidityDuration = c.MFAValidityDuration.Duration
	}
	if c.SweepInterval != nil {
		config.SweepInterval = c.SweepInterval.Duration
	}

	set(&config.PasswordMinLength, c.PasswordMinLength)
	set(&config.PasswordMaxLength, c.PasswordMaxLength)
	set(&config.BreachCheck, c.BreachCheck)
	set(&config.BreachURL, c.BreachURL)
	set(&config.BreachDigest, c.BreachDigest)
	if c.BreachTimeout != nil {
		config.BreachTimeout = c.BreachTimeout.Duration
	}
	set(&config.RedisAddr, c.RedisAddr)
	if c.BreachCacheTTL != nil {
		config.BreachCacheTTL = c.BreachCacheTTL.Duration
	}
	set(&config.BlocklistSource, c.BlocklistSource)

	set(&config.S3AccessKey, c.S3AccessKey)
	set(&config.S3SecretKey, c.S3SecretKey)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	set(&config.SMTPAddr, c.SMTPAddr)
	set(&config.SMTPUsername, c.SMTPUsername)
	set(&config.SMTPPassword, c.SMTPPassword)
	set(&config.MailFrom, c.MailFrom)

	set(&config.CatalogFile, c.CatalogFile)
	if c.ReloadInterval != nil {
		config.ReloadInterval = c.ReloadInterval.Duration
	}

	set(&config.TxMaxAttempts, c.TxMaxAttempts)
	set(&config.MFAMaxAttempts, c.MFAMaxAttempts)

	set(&config.LogLevel, c.LogLevel)
	set(&config.LogFormat, c.LogFormat)
}
