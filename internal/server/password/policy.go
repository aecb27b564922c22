// Package password checks candidate passwords against length limits, a
// blocklist of patterns and a breached-password corpus.
package password

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/breach"
)

// Status is the outcome of Check. Only StatusOK accepts the password.
type Status int

const (
	StatusOK Status = iota
	StatusNotString
	StatusTooShort
	StatusTooLong
	StatusBlocklisted
	StatusBreached
	StatusUnverified
)

var statusText = map[Status]string{
	StatusOK:          "password accepted",
	StatusNotString:   "password must be a string",
	StatusTooShort:    "password is too short",
	StatusTooLong:     "password is too long",
	StatusBlocklisted: "password is too easy to guess",
	StatusBreached:    "password appears in a known data breach, choose another one",
	StatusUnverified:  "password could not be checked right now, try again later",
}

// StatusText returns the user-facing reason for s.
func StatusText(s Status) string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "password rejected"
}

// Config bounds password length in characters. MaxLength guards the KDF
// against oversized input.
type Config struct {
	MinLength    int
	MaxLength    int
	BreachDigest string // "sha1" (Pwned Passwords) or "sha256"
}

func DefaultConfig() Config {
	return Config{MinLength: 8, MaxLength: 128, BreachDigest: "sha1"}
}

// BlocklistSource returns the current blocklist. It is called on every check
// so a reloaded list takes effect immediately.
type BlocklistSource func() []*regexp.Regexp

type Checker struct {
	cfg       Config
	blocklist BlocklistSource
	lookup    breach.Lookup
}

func NewChecker(cfg Config, blocklist BlocklistSource, lookup breach.Lookup) (*Checker, error) {
	if cfg.MinLength < 1 || cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("invalid password length bounds %d..%d", cfg.MinLength, cfg.MaxLength)
	}
	switch cfg.BreachDigest {
	case "sha1", "sha256":
	default:
		return nil, fmt.Errorf("unsupported breach digest %q", cfg.BreachDigest)
	}
	if blocklist == nil {
		blocklist = func() []*regexp.Regexp { return nil }
	}
	return &Checker{cfg: cfg, blocklist: blocklist, lookup: lookup}, nil
}

// Check classifies password. A failed corpus lookup yields StatusUnverified
// together with an external-collaborator error, so the password is never
// accepted without the breach check.
func (c *Checker) Check(ctx context.Context, password any) (Status, error) {
	pw, ok := password.(string)
	if !ok {
		return StatusNotString, nil
	}

	n := utf8.RuneCountInString(pw)
	if n < c.cfg.MinLength {
		return StatusTooShort, nil
	}
	if n > c.cfg.MaxLength {
		return StatusTooLong, nil
	}

	for _, re := range c.blocklist() {
		if re.MatchString(pw) {
			return StatusBlocklisted, nil
		}
	}

	if c.lookup == nil {
		return StatusOK, nil
	}

	digest := c.digest(pw)
	prefix, suffix := digest[:breach.PrefixLength], digest[breach.PrefixLength:]

	body, err := c.lookup.Range(ctx, prefix)
	if err != nil {
		return StatusUnverified, common.External("breach corpus", err)
	}
	if breach.Count(body, suffix) > 0 {
		return StatusBreached, nil
	}
	return StatusOK, nil
}

func (c *Checker) digest(pw string) string {
	if c.cfg.BreachDigest == "sha256" {
		sum := sha256.Sum256([]byte(pw))
		return strings.ToUpper(hex.EncodeToString(sum[:]))
	}
	sum := sha1.Sum([]byte(pw))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// PolicyError converts a rejecting status into a policy violation.
func PolicyError(s Status) error {
	return common.Policy("password", StatusText(s))
}
