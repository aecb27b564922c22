// Package config resolves learnctl settings. Defaults are applied first, then
// an optional JSON file named by -c/-config, then the -a, -t and -f flags.
//
// A JSON file may set any subset of:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "10s",
//	  "token_file": "/home/me/.learnctl-token"
//	}
package config
