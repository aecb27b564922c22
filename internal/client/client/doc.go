// Package client contains the LearnKeeper API client used by learnctl.
//
// GRPCClient talks to the learnkeeper.v1.LearnKeeper service. Requests and
// replies are google.protobuf.Struct messages; GRPCClient hides that behind
// typed methods, attaches the current session token to every call and maps
// gRPC status codes to the sentinel errors in errors.go.
package client
