// Package common contains shared constants, helpers and the error taxonomy
// used across LearnKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the bearer
// session token on inbound requests.
const AccessTokenHeaderName = "authorization"

// BearerPrefix is the scheme prefix accepted in front of the session token.
const BearerPrefix = "Bearer "
