// Package cli implements learnctl, a small command-line client for the
// LearnKeeper API.
//
// Each invocation runs one command. The session token obtained by signin is
// kept in the configured token file and attached to later calls, so a typical
// flow is:
//
//	learnctl signup alice alice@example.com
//	learnctl signin alice
//	learnctl whoami
//	learnctl signout
package cli
