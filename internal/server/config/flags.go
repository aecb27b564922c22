package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   ops HTTP bind address (health and metrics)
//	-d string   PostgreSQL DSN, empty for the in-memory store
//	-k string   master secret for field encryption
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-v int      MFA code validity, minutes
//	-r string   Redis address for the breach range cache
//	-b string   password blocklist, a path or s3://bucket/key
//	-u string   S3 access key
//	-p string   S3 secret key
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log level
//	-f string   log format, json or zap
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs. Duration flags are whole minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-k", "-s", "-t", "-v", "-r", "-b", "-u", "-p", "-g", "-e", "-l", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.EndpointAddrOps, "m", config.EndpointAddrOps, "address and port of the ops endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MasterSecret, "k", config.MasterSecret, "master secret")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "jwt secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")
	mfaValidity := fs.Int("v", int(config.MFAValidityDuration.Minutes()), "mfa_validity_duration (in minutes)")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.BlocklistSource, "b", config.BlocklistSource, "password blocklist source")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.MFAValidityDuration = time.Duration(*mfaValidity) * time.Minute
}
